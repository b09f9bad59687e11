package fluxq

// slicedConsumable is a pending [lower, upper) range over its parent. Further
// Skip and Take calls merge into the range; the single SliceLink is composed
// only when the query runs.
type slicedConsumable[T any] struct {
	parent Consumable[T]
	lower  int
	upper  int
}

func (c *slicedConsumable[T]) Consume(consumer Chain[T]) error {
	return runChain[T](c, consumer)
}

func (c *slicedConsumable[T]) Iterator() Iterator[T] {
	return newChainIterator[T](c)
}

func (c *slicedConsumable[T]) compose(next Chain[T]) driver {
	link := &SliceLink[T]{Lower: c.lower, Upper: c.upper}
	return c.parent.compose(link.Compose(next))
}

func saturatingAdd(a, b int) int {
	if a > maxInt-b {
		return maxInt
	}
	return a + b
}

// Skip drops the first count items. A count of zero or less returns c itself.
// It panics if c is nil.
func Skip[T any](c Consumable[T], count int) Consumable[T] {
	requireNotNil("consumable", c == nil)
	if count <= 0 {
		return c
	}
	switch src := c.(type) {
	case emptyConsumable[T]:
		return c
	case *sliceConsumable[T]:
		if count >= len(src.items) {
			return Empty[T]()
		}
		return &sliceConsumable[T]{items: src.items[count:]}
	case *slicedConsumable[T]:
		return narrow(src.parent, saturatingAdd(src.lower, count), src.upper)
	}
	return narrow(c, count, maxInt)
}

// Take passes at most count items and stops the run once the count is
// reached. A count of zero or less returns the empty consumable.
// It panics if c is nil.
func Take[T any](c Consumable[T], count int) Consumable[T] {
	requireNotNil("consumable", c == nil)
	if count <= 0 {
		return Empty[T]()
	}
	switch src := c.(type) {
	case emptyConsumable[T]:
		return c
	case *sliceConsumable[T]:
		if count >= len(src.items) {
			return c
		}
		return &sliceConsumable[T]{items: src.items[:count]}
	case *slicedConsumable[T]:
		return narrow(src.parent, src.lower, min(src.upper, saturatingAdd(src.lower, count)))
	}
	return narrow(c, 0, count)
}

func narrow[T any](parent Consumable[T], lower, upper int) Consumable[T] {
	if lower >= upper {
		return Empty[T]()
	}
	return &slicedConsumable[T]{parent: parent, lower: lower, upper: upper}
}

// fastIterator returns a specialized iterator when the query is exactly a
// slice or indexed source followed by one Select or one Where.
func fastIterator[T, U any](parent Consumable[T], link Link[T, U]) (Iterator[U], bool) {
	switch src := parent.(type) {
	case *sliceConsumable[T]:
		switch l := any(link).(type) {
		case *SelectLink[T, U]:
			return &sliceSelectIterator[T, U]{items: src.items, selector: l.Selector}, true
		case *WhereLink[T]:
			it, ok := any(&sliceWhereIterator[T]{items: src.items, predicate: l.Predicate}).(Iterator[U])
			return it, ok
		}
	case *sourceConsumable[T]:
		idx, ok := src.src.(Indexed[T])
		if !ok {
			return nil, false
		}
		switch l := any(link).(type) {
		case *SelectLink[T, U]:
			return &indexedSelectIterator[T, U]{cursor: indexCursor[T]{src: idx}, selector: l.Selector}, true
		case *WhereLink[T]:
			it, ok := any(&indexedWhereIterator[T]{cursor: indexCursor[T]{src: idx}, predicate: l.Predicate}).(Iterator[U])
			return it, ok
		}
	}
	return nil, false
}

type sliceSelectIterator[T, U any] struct {
	items    []T
	pos      int
	selector func(T) U
	current  U
}

func (it *sliceSelectIterator[T, U]) Next() bool {
	if it.pos >= len(it.items) {
		var zero U
		it.current = zero
		return false
	}
	it.current = it.selector(it.items[it.pos])
	it.pos++
	return true
}

func (it *sliceSelectIterator[T, U]) Value() U { return it.current }

func (*sliceSelectIterator[T, U]) Err() error { return nil }

func (it *sliceSelectIterator[T, U]) Close() error {
	it.pos = len(it.items)
	return nil
}

func (*sliceSelectIterator[T, U]) Reset() error { return ErrNotSupported }

type sliceWhereIterator[T any] struct {
	items     []T
	pos       int
	predicate func(T) bool
	current   T
}

func (it *sliceWhereIterator[T]) Next() bool {
	for it.pos < len(it.items) {
		item := it.items[it.pos]
		it.pos++
		if it.predicate(item) {
			it.current = item
			return true
		}
	}
	var zero T
	it.current = zero
	return false
}

func (it *sliceWhereIterator[T]) Value() T { return it.current }

func (*sliceWhereIterator[T]) Err() error { return nil }

func (it *sliceWhereIterator[T]) Close() error {
	it.pos = len(it.items)
	return nil
}

func (*sliceWhereIterator[T]) Reset() error { return ErrNotSupported }

// indexCursor walks an Indexed source by position. Len is read once, on the
// first advance, the same way a pushed run reads it when the source opens.
type indexCursor[T any] struct {
	src    Indexed[T]
	opened bool
	length int
	pos    int
}

func (c *indexCursor[T]) next() (T, bool) {
	if !c.opened {
		c.opened = true
		c.length = c.src.Len()
	}
	if c.pos >= c.length {
		var zero T
		return zero, false
	}
	v := c.src.At(c.pos)
	c.pos++
	return v, true
}

func (c *indexCursor[T]) close() {
	c.opened = true
	c.pos = c.length
}

type indexedSelectIterator[T, U any] struct {
	cursor   indexCursor[T]
	selector func(T) U
	current  U
}

func (it *indexedSelectIterator[T, U]) Next() bool {
	v, ok := it.cursor.next()
	if !ok {
		var zero U
		it.current = zero
		return false
	}
	it.current = it.selector(v)
	return true
}

func (it *indexedSelectIterator[T, U]) Value() U { return it.current }

func (*indexedSelectIterator[T, U]) Err() error { return nil }

func (it *indexedSelectIterator[T, U]) Close() error {
	it.cursor.close()
	var zero U
	it.current = zero
	return nil
}

func (*indexedSelectIterator[T, U]) Reset() error { return ErrNotSupported }

type indexedWhereIterator[T any] struct {
	cursor    indexCursor[T]
	predicate func(T) bool
	current   T
}

func (it *indexedWhereIterator[T]) Next() bool {
	for {
		v, ok := it.cursor.next()
		if !ok {
			break
		}
		if it.predicate(v) {
			it.current = v
			return true
		}
	}
	var zero T
	it.current = zero
	return false
}

func (it *indexedWhereIterator[T]) Value() T { return it.current }

func (*indexedWhereIterator[T]) Err() error { return nil }

func (it *indexedWhereIterator[T]) Close() error {
	it.cursor.close()
	var zero T
	it.current = zero
	return nil
}

func (*indexedWhereIterator[T]) Reset() error { return ErrNotSupported }
