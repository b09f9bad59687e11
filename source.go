package fluxq

import "iter"

// Source is a restartable producer of items. Each call to Enumerate starts a
// new, independent pass.
type Source[T any] interface {
	Enumerate() (Enumerator[T], error)
}

// Enumerator is one pass over a Source.
type Enumerator[T any] interface {
	// Next returns the next item. ok is false once the pass is exhausted.
	Next() (item T, ok bool, err error)
	// Close releases the pass. It is called exactly once per opened pass.
	Close() error
}

// Indexed is implemented by sources backed by contiguous storage. Drivers use
// it to walk items by position instead of opening an enumerator.
type Indexed[T any] interface {
	Len() int
	At(i int) T
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func() (Enumerator[T], error)

// Enumerate implements the Source interface for SourceFunc.
func (f SourceFunc[T]) Enumerate() (Enumerator[T], error) {
	return f()
}

// seqSource enumerates an iter.Seq through iter.Pull.
type seqSource[T any] struct {
	seq iter.Seq[T]
}

func (s seqSource[T]) Enumerate() (Enumerator[T], error) {
	next, stop := iter.Pull(s.seq)
	return &pullEnumerator[T]{next: next, stop: stop}, nil
}

type pullEnumerator[T any] struct {
	next func() (T, bool)
	stop func()
}

func (e *pullEnumerator[T]) Next() (T, bool, error) {
	v, ok := e.next()
	return v, ok, nil
}

func (e *pullEnumerator[T]) Close() error {
	e.stop()
	return nil
}

// funcEnumerator calls a generator for every item. Close is a no-op.
type funcEnumerator[T any] struct {
	fn func() (T, bool)
}

func (e funcEnumerator[T]) Next() (T, bool, error) {
	v, ok := e.fn()
	return v, ok, nil
}

func (funcEnumerator[T]) Close() error { return nil }

type rangeSource struct {
	start, count int
}

func (r rangeSource) Len() int { return r.count }
func (r rangeSource) At(i int) int { return r.start + i }
func (r rangeSource) Enumerate() (Enumerator[int], error) {
	return &indexedEnumerator[int]{src: r}, nil
}

type repeatSource[T any] struct {
	value T
	count int
}

func (r repeatSource[T]) Len() int { return r.count }
func (r repeatSource[T]) At(int) T { return r.value }
func (r repeatSource[T]) Enumerate() (Enumerator[T], error) {
	return &indexedEnumerator[T]{src: r}, nil
}

type indexedEnumerator[T any] struct {
	src Indexed[T]
	pos int
}

func (e *indexedEnumerator[T]) Next() (T, bool, error) {
	if e.pos >= e.src.Len() {
		var zero T
		return zero, false, nil
	}
	v := e.src.At(e.pos)
	e.pos++
	return v, true, nil
}

func (*indexedEnumerator[T]) Close() error { return nil }

// FromSlice returns a consumable over items. The slice is not copied; runs
// observe its contents at the time they execute.
func FromSlice[T any](items []T) Consumable[T] {
	if len(items) == 0 {
		return Empty[T]()
	}
	return &sliceConsumable[T]{items: items}
}

// FromSource returns a consumable that opens a fresh enumeration of src for
// every run. Sources that also implement Indexed are walked by position.
func FromSource[T any](src Source[T]) Consumable[T] {
	requireNotNil("source", src == nil)
	return &sourceConsumable[T]{src: src}
}

// FromSeq returns a consumable over a range-over-func sequence.
func FromSeq[T any](seq iter.Seq[T]) Consumable[T] {
	requireNotNil("seq", seq == nil)
	return &sourceConsumable[T]{src: seqSource[T]{seq: seq}}
}

// FromFunc returns a consumable that calls fn for each item until it reports
// false. The generator itself carries any state, so the consumable is only as
// restartable as fn is.
func FromFunc[T any](fn func() (T, bool)) Consumable[T] {
	requireNotNil("fn", fn == nil)
	return &sourceConsumable[T]{src: SourceFunc[T](func() (Enumerator[T], error) {
		return funcEnumerator[T]{fn: fn}, nil
	})}
}

// Range returns count consecutive integers starting at start.
// It panics with ErrArgumentOutOfRange if count is negative or the range
// would overflow int.
func Range(start, count int) Consumable[int] {
	if count < 0 || (count > 0 && start > maxInt-count+1) {
		panic(NewArgumentError("count", ErrArgumentOutOfRange))
	}
	if count == 0 {
		return Empty[int]()
	}
	return &sourceConsumable[int]{src: rangeSource{start: start, count: count}}
}

// Repeat returns value count times.
// It panics with ErrArgumentOutOfRange if count is negative.
func Repeat[T any](value T, count int) Consumable[T] {
	if count < 0 {
		panic(NewArgumentError("count", ErrArgumentOutOfRange))
	}
	if count == 0 {
		return Empty[T]()
	}
	return &sourceConsumable[T]{src: repeatSource[T]{value: value, count: count}}
}
