package fluxq

import "cmp"

// ToSliceConsumer collects every item in order.
type ToSliceConsumer[T any] struct {
	ConsumerBase[[]T]
}

// NewToSliceConsumer creates a ToSliceConsumer. capacity is a size hint.
func NewToSliceConsumer[T any](capacity int) *ToSliceConsumer[T] {
	return &ToSliceConsumer[T]{ConsumerBase: NewConsumerBase(make([]T, 0, max(capacity, 0)))}
}

// ProcessNext implements the Chain interface for ToSliceConsumer.
func (c *ToSliceConsumer[T]) ProcessNext(item T) (ChainStatus, error) {
	c.result = append(c.result, item)
	return Flow, nil
}

// CountConsumer counts items.
type CountConsumer[T any] struct {
	ConsumerBase[int]
}

// NewCountConsumer creates a CountConsumer.
func NewCountConsumer[T any]() *CountConsumer[T] {
	return &CountConsumer[T]{}
}

// ProcessNext implements the Chain interface for CountConsumer.
func (c *CountConsumer[T]) ProcessNext(T) (ChainStatus, error) {
	if c.result == maxInt {
		return Stop, NewOverflowError("count")
	}
	c.result++
	return Flow, nil
}

// AnyConsumer reports whether any item satisfies the predicate. It stops the
// run at the first match. A nil predicate matches every item.
type AnyConsumer[T any] struct {
	ConsumerBase[bool]
	predicate func(T) bool
}

// NewAnyConsumer creates an AnyConsumer.
func NewAnyConsumer[T any](predicate func(T) bool) *AnyConsumer[T] {
	return &AnyConsumer[T]{predicate: predicate}
}

// ProcessNext implements the Chain interface for AnyConsumer.
func (c *AnyConsumer[T]) ProcessNext(item T) (ChainStatus, error) {
	if c.predicate == nil || c.predicate(item) {
		c.result = true
		return Stop | Flow, nil
	}
	return Filter, nil
}

// AllConsumer reports whether every item satisfies the predicate. It stops
// the run at the first mismatch.
type AllConsumer[T any] struct {
	ConsumerBase[bool]
	predicate func(T) bool
}

// NewAllConsumer creates an AllConsumer.
func NewAllConsumer[T any](predicate func(T) bool) *AllConsumer[T] {
	return &AllConsumer[T]{ConsumerBase: NewConsumerBase(true), predicate: predicate}
}

// ProcessNext implements the Chain interface for AllConsumer.
func (c *AllConsumer[T]) ProcessNext(item T) (ChainStatus, error) {
	if !c.predicate(item) {
		c.result = false
		return Stop, nil
	}
	return Flow, nil
}

// FirstConsumer keeps the first item that satisfies the predicate and stops.
// Completion fails with ErrNoElements when nothing matched. A nil predicate
// matches every item.
type FirstConsumer[T any] struct {
	ConsumerBase[T]
	predicate func(T) bool
	found     bool
}

// NewFirstConsumer creates a FirstConsumer.
func NewFirstConsumer[T any](predicate func(T) bool) *FirstConsumer[T] {
	return &FirstConsumer[T]{predicate: predicate}
}

// ProcessNext implements the Chain interface for FirstConsumer.
func (c *FirstConsumer[T]) ProcessNext(item T) (ChainStatus, error) {
	if c.predicate != nil && !c.predicate(item) {
		return Filter, nil
	}
	c.result = item
	c.found = true
	return Stop | Flow, nil
}

// ChainComplete implements the Chain interface for FirstConsumer.
func (c *FirstConsumer[T]) ChainComplete() error {
	if !c.found {
		return ErrNoElements
	}
	return nil
}

// AggregateConsumer folds items into an accumulator starting from a seed.
type AggregateConsumer[T, A any] struct {
	ConsumerBase[A]
	fn func(A, T) A
}

// NewAggregateConsumer creates an AggregateConsumer.
func NewAggregateConsumer[T, A any](seed A, fn func(A, T) A) *AggregateConsumer[T, A] {
	return &AggregateConsumer[T, A]{ConsumerBase: NewConsumerBase(seed), fn: fn}
}

// ProcessNext implements the Chain interface for AggregateConsumer.
func (c *AggregateConsumer[T, A]) ProcessNext(item T) (ChainStatus, error) {
	c.result = c.fn(c.result, item)
	return Flow, nil
}

// ReduceConsumer folds items using the first item as the seed.
// Completion fails with ErrNoElements on an empty run.
type ReduceConsumer[T any] struct {
	ConsumerBase[T]
	fn   func(T, T) T
	seen bool
}

// NewReduceConsumer creates a ReduceConsumer.
func NewReduceConsumer[T any](fn func(T, T) T) *ReduceConsumer[T] {
	return &ReduceConsumer[T]{fn: fn}
}

// ProcessNext implements the Chain interface for ReduceConsumer.
func (c *ReduceConsumer[T]) ProcessNext(item T) (ChainStatus, error) {
	if !c.seen {
		c.seen = true
		c.result = item
		return Flow, nil
	}
	c.result = c.fn(c.result, item)
	return Flow, nil
}

// ChainComplete implements the Chain interface for ReduceConsumer.
func (c *ReduceConsumer[T]) ChainComplete() error {
	if !c.seen {
		return ErrNoElements
	}
	return nil
}

// NewMinConsumer returns a consumer yielding the smallest item.
func NewMinConsumer[T cmp.Ordered]() *ReduceConsumer[T] {
	return NewReduceConsumer(func(a, b T) T { return min(a, b) })
}

// NewMaxConsumer returns a consumer yielding the largest item.
func NewMaxConsumer[T cmp.Ordered]() *ReduceConsumer[T] {
	return NewReduceConsumer(func(a, b T) T { return max(a, b) })
}

// ForEachConsumer calls an action for every item and counts the calls. The
// run stops when the action returns false.
type ForEachConsumer[T any] struct {
	ConsumerBase[int]
	action func(T) bool
}

// NewForEachConsumer creates a ForEachConsumer.
func NewForEachConsumer[T any](action func(T) bool) *ForEachConsumer[T] {
	return &ForEachConsumer[T]{action: action}
}

// ProcessNext implements the Chain interface for ForEachConsumer.
func (c *ForEachConsumer[T]) ProcessNext(item T) (ChainStatus, error) {
	c.result++
	if !c.action(item) {
		return Stop | Flow, nil
	}
	return Flow, nil
}
