package fluxq

// Grouping is a key with the elements that share it, in source order.
type Grouping[K comparable, E any] struct {
	key      K
	elements []E
}

// Key returns the grouping key.
func (g *Grouping[K, E]) Key() K {
	return g.key
}

// Elements returns the grouped elements. The slice must not be modified.
func (g *Grouping[K, E]) Elements() []E {
	return g.elements
}

// Len returns the number of elements.
func (g *Grouping[K, E]) Len() int {
	return len(g.elements)
}

// AsConsumable returns the elements as a query source.
func (g *Grouping[K, E]) AsConsumable() Consumable[E] {
	return FromSlice(g.elements)
}

// Lookup maps keys to groupings and remembers the order in which keys first
// appeared. Groupings live in an arena; next links them into a circular list
// where next[last] is the first grouping.
type Lookup[K comparable, E any] struct {
	groups []*Grouping[K, E]
	index  map[K]int
	next   []int
	last   int
}

func newLookup[K comparable, E any]() *Lookup[K, E] {
	return &Lookup[K, E]{index: make(map[K]int), last: -1}
}

func (l *Lookup[K, E]) add(key K, element E) {
	i, ok := l.index[key]
	if !ok {
		i = len(l.groups)
		l.groups = append(l.groups, &Grouping[K, E]{key: key})
		l.index[key] = i
		if l.last < 0 {
			l.next = append(l.next, i)
		} else {
			l.next = append(l.next, l.next[l.last])
			l.next[l.last] = i
		}
		l.last = i
	}
	g := l.groups[i]
	g.elements = append(g.elements, element)
}

// Count returns the number of distinct keys.
func (l *Lookup[K, E]) Count() int {
	return len(l.groups)
}

// Contains reports whether key has a grouping.
func (l *Lookup[K, E]) Contains(key K) bool {
	_, ok := l.index[key]
	return ok
}

// Get returns the elements for key, or the empty consumable for a missing key.
func (l *Lookup[K, E]) Get(key K) Consumable[E] {
	i, ok := l.index[key]
	if !ok {
		return Empty[E]()
	}
	return l.groups[i].AsConsumable()
}

// Grouping returns the grouping for key.
func (l *Lookup[K, E]) Grouping(key K) (*Grouping[K, E], bool) {
	i, ok := l.index[key]
	if !ok {
		return nil, false
	}
	return l.groups[i], true
}

// Groupings returns every grouping in first-occurrence order.
func (l *Lookup[K, E]) Groupings() []*Grouping[K, E] {
	out := make([]*Grouping[K, E], 0, len(l.groups))
	if l.last < 0 {
		return out
	}
	for i := l.next[l.last]; ; i = l.next[i] {
		out = append(out, l.groups[i])
		if i == l.last {
			return out
		}
	}
}

// AsConsumable returns the groupings as a query source.
func (l *Lookup[K, E]) AsConsumable() Consumable[*Grouping[K, E]] {
	if l.last < 0 {
		return Empty[*Grouping[K, E]]()
	}
	return &lookupConsumable[K, E]{build: func() (*Lookup[K, E], error) { return l, nil }}
}

// LookupConsumer builds a Lookup from a run.
type LookupConsumer[T any, K comparable, E any] struct {
	ConsumerBase[*Lookup[K, E]]
	keySelector     func(T) K
	elementSelector func(T) E
}

// NewLookupConsumer creates a LookupConsumer.
func NewLookupConsumer[T any, K comparable, E any](keySelector func(T) K, elementSelector func(T) E) *LookupConsumer[T, K, E] {
	return &LookupConsumer[T, K, E]{
		ConsumerBase:    NewConsumerBase(newLookup[K, E]()),
		keySelector:     keySelector,
		elementSelector: elementSelector,
	}
}

// ProcessNext implements the Chain interface for LookupConsumer.
func (c *LookupConsumer[T, K, E]) ProcessNext(item T) (ChainStatus, error) {
	c.result.add(c.keySelector(item), c.elementSelector(item))
	return Flow, nil
}

// lookupConsumable pushes one grouping per step. build produces the lookup at
// the start of every run.
type lookupConsumable[K comparable, E any] struct {
	build func() (*Lookup[K, E], error)
}

func (c *lookupConsumable[K, E]) Consume(consumer Chain[*Grouping[K, E]]) error {
	return runChain[*Grouping[K, E]](c, consumer)
}

func (c *lookupConsumable[K, E]) Iterator() Iterator[*Grouping[K, E]] {
	return newChainIterator[*Grouping[K, E]](c)
}

func (c *lookupConsumable[K, E]) compose(next Chain[*Grouping[K, E]]) driver {
	return &lookupDriver[K, E]{chainDriver: chainDriver[*Grouping[K, E]]{head: next}, build: c.build}
}

type lookupState uint8

const (
	lookupInitialization lookupState = iota
	lookupProcessing
	lookupFinished
)

type lookupDriver[K comparable, E any] struct {
	chainDriver[*Grouping[K, E]]
	build   func() (*Lookup[K, E], error)
	lookup  *Lookup[K, E]
	state   lookupState
	current int
}

func (d *lookupDriver[K, E]) step() (bool, error) {
	switch d.state {
	case lookupInitialization:
		lookup, err := d.build()
		if err != nil {
			d.state = lookupFinished
			return true, err
		}
		d.lookup = lookup
		if lookup.last < 0 {
			d.state = lookupFinished
			return true, nil
		}
		d.current = lookup.last
		d.state = lookupProcessing
		fallthrough
	case lookupProcessing:
		d.current = d.lookup.next[d.current]
		status, err := d.head.ProcessNext(d.lookup.groups[d.current])
		if err != nil || status.IsStopped() || d.current == d.lookup.last {
			d.state = lookupFinished
			return true, err
		}
		return false, nil
	default:
		return true, nil
	}
}

func (d *lookupDriver[K, E]) run() error {
	for {
		done, err := d.step()
		if err != nil || done {
			return err
		}
	}
}

func (d *lookupDriver[K, E]) dispose() error {
	d.lookup = nil
	return d.chainDriver.dispose()
}

// GroupBy groups items by key. The parent is drained at the start of each run
// and groupings are emitted in the order their keys first appeared.
// It panics if c or keySelector is nil.
func GroupBy[T any, K comparable](c Consumable[T], keySelector func(T) K) Consumable[*Grouping[K, T]] {
	return GroupByElement(c, keySelector, func(item T) T { return item })
}

// GroupByElement groups projected elements by key.
// It panics if c, keySelector or elementSelector is nil.
func GroupByElement[T any, K comparable, E any](c Consumable[T], keySelector func(T) K, elementSelector func(T) E) Consumable[*Grouping[K, E]] {
	requireNotNil("consumable", c == nil)
	requireNotNil("keySelector", keySelector == nil)
	requireNotNil("elementSelector", elementSelector == nil)
	if isEmpty(c) {
		return Empty[*Grouping[K, E]]()
	}
	return &lookupConsumable[K, E]{build: func() (*Lookup[K, E], error) {
		return Consume[T, *Lookup[K, E]](c, NewLookupConsumer(keySelector, elementSelector))
	}}
}

// GroupByResult groups projected elements by key and maps each group to a result.
func GroupByResult[T any, K comparable, E, R any](c Consumable[T], keySelector func(T) K, elementSelector func(T) E, resultSelector func(K, []E) R) Consumable[R] {
	requireNotNil("resultSelector", resultSelector == nil)
	return Select(GroupByElement(c, keySelector, elementSelector), func(g *Grouping[K, E]) R {
		return resultSelector(g.Key(), g.Elements())
	})
}

// ToLookup runs c and returns the resulting Lookup.
func ToLookup[T any, K comparable, E any](c Consumable[T], keySelector func(T) K, elementSelector func(T) E) (*Lookup[K, E], error) {
	if keySelector == nil {
		return nil, NewArgumentError("keySelector", ErrArgumentNull)
	}
	if elementSelector == nil {
		return nil, NewArgumentError("elementSelector", ErrArgumentNull)
	}
	return Consume[T, *Lookup[K, E]](c, NewLookupConsumer(keySelector, elementSelector))
}
