package fluxq

import "cmp"

// Where keeps the items for which predicate holds.
// It panics if c or predicate is nil.
func Where[T any](c Consumable[T], predicate func(T) bool) Consumable[T] {
	return AddTail[T, T](c, NewWhereLink(predicate))
}

// WhereIndexed keeps the items for which predicate holds, given their position.
func WhereIndexed[T any](c Consumable[T], predicate func(T, int) bool) Consumable[T] {
	return AddTail[T, T](c, NewWhereIndexedLink(predicate))
}

// Select projects each item.
// It panics if c or selector is nil.
func Select[T, U any](c Consumable[T], selector func(T) U) Consumable[U] {
	return AddTail[T, U](c, NewSelectLink(selector))
}

// SelectIndexed projects each item together with its position.
func SelectIndexed[T, U any](c Consumable[T], selector func(T, int) U) Consumable[U] {
	return AddTail[T, U](c, NewSelectIndexedLink(selector))
}

// SelectMany flattens the inner consumable selected for each item.
func SelectMany[T, U any](c Consumable[T], selector func(T) Consumable[U]) Consumable[U] {
	return AddTail[T, U](c, NewSelectManyLink(selector))
}

// SelectManyIndexed flattens the inner consumable selected for each item and
// its position, combining outer and inner items through resultSelector.
func SelectManyIndexed[T, U, R any](c Consumable[T], selector func(T, int) Consumable[U], resultSelector func(T, U) R) Consumable[R] {
	pairs := AddTail[T, Pair[T, U]](c, NewSelectManyIndexedLink(selector))
	return AddTail[Pair[T, U], R](pairs, NewFlattenLink(resultSelector))
}

// SkipWhile drops items while predicate holds.
func SkipWhile[T any](c Consumable[T], predicate func(T) bool) Consumable[T] {
	requireNotNil("predicate", predicate == nil)
	return AddTail[T, T](c, &SkipWhileLink[T]{Predicate: predicate})
}

// TakeWhile passes items while predicate holds and stops at the first
// item for which it does not.
func TakeWhile[T any](c Consumable[T], predicate func(T) bool) Consumable[T] {
	requireNotNil("predicate", predicate == nil)
	return AddTail[T, T](c, &TakeWhileLink[T]{Predicate: predicate})
}

// SkipLast drops the final count items. A count of zero or less returns c.
func SkipLast[T any](c Consumable[T], count int) Consumable[T] {
	requireNotNil("consumable", c == nil)
	if count <= 0 {
		return c
	}
	return AddTail[T, T](c, &SkipLastLink[T]{Count: count})
}

// TakeLast keeps only the final count items. A count of zero or less
// returns the empty consumable.
func TakeLast[T any](c Consumable[T], count int) Consumable[T] {
	requireNotNil("consumable", c == nil)
	if count <= 0 {
		return Empty[T]()
	}
	return AddTail[T, T](c, &TakeLastLink[T]{Count: count})
}

// Chunk groups consecutive items into slices of size.
// It panics if size is not positive.
func Chunk[T any](c Consumable[T], size int) Consumable[[]T] {
	return AddTail[T, []T](c, NewChunkLink[T](size))
}

// Window emits sliding windows of size items every slide items.
func Window[T any](c Consumable[T], size, slide int) Consumable[[]T] {
	return AddTail[T, []T](c, NewWindowLink[T](size, slide))
}

// Tap calls action for each item as it flows past.
func Tap[T any](c Consumable[T], action func(T)) Consumable[T] {
	requireNotNil("action", action == nil)
	return AddTail[T, T](c, &TapLink[T]{Action: action})
}

// ToSlice runs c and returns every item. An empty run returns an empty,
// non-nil slice.
func ToSlice[T any](c Consumable[T]) ([]T, error) {
	return Consume[T, []T](c, NewToSliceConsumer[T](0))
}

// Count runs c and returns the number of items.
func Count[T any](c Consumable[T]) (int, error) {
	return Consume[T, int](c, NewCountConsumer[T]())
}

// Any reports whether c has at least one item. It pulls at most one item.
func Any[T any](c Consumable[T]) (bool, error) {
	return Consume[T, bool](c, NewAnyConsumer[T](nil))
}

// AnyMatch reports whether some item satisfies predicate.
func AnyMatch[T any](c Consumable[T], predicate func(T) bool) (bool, error) {
	if predicate == nil {
		return false, NewArgumentError("predicate", ErrArgumentNull)
	}
	return Consume[T, bool](c, NewAnyConsumer(predicate))
}

// AllMatch reports whether every item satisfies predicate. It is true for an
// empty run.
func AllMatch[T any](c Consumable[T], predicate func(T) bool) (bool, error) {
	if predicate == nil {
		return false, NewArgumentError("predicate", ErrArgumentNull)
	}
	return Consume[T, bool](c, NewAllConsumer(predicate))
}

// First returns the first item, or ErrNoElements.
func First[T any](c Consumable[T]) (T, error) {
	return Consume[T, T](c, NewFirstConsumer[T](nil))
}

// FirstMatch returns the first item satisfying predicate, or ErrNoElements.
func FirstMatch[T any](c Consumable[T], predicate func(T) bool) (T, error) {
	if predicate == nil {
		var zero T
		return zero, NewArgumentError("predicate", ErrArgumentNull)
	}
	return Consume[T, T](c, NewFirstConsumer(predicate))
}

// Aggregate folds the items into seed with fn.
func Aggregate[T, A any](c Consumable[T], seed A, fn func(A, T) A) (A, error) {
	if fn == nil {
		return seed, NewArgumentError("fn", ErrArgumentNull)
	}
	return Consume[T, A](c, NewAggregateConsumer(seed, fn))
}

// Reduce folds the items with fn using the first item as the seed.
// An empty run returns ErrNoElements.
func Reduce[T any](c Consumable[T], fn func(T, T) T) (T, error) {
	if fn == nil {
		var zero T
		return zero, NewArgumentError("fn", ErrArgumentNull)
	}
	return Consume[T, T](c, NewReduceConsumer(fn))
}

// Min returns the smallest item, or ErrNoElements.
func Min[T cmp.Ordered](c Consumable[T]) (T, error) {
	return Consume[T, T](c, NewMinConsumer[T]())
}

// Max returns the largest item, or ErrNoElements.
func Max[T cmp.Ordered](c Consumable[T]) (T, error) {
	return Consume[T, T](c, NewMaxConsumer[T]())
}

// ForEach calls action for each item until it returns false. It returns the
// number of calls made.
func ForEach[T any](c Consumable[T], action func(T) bool) (int, error) {
	if action == nil {
		return 0, NewArgumentError("action", ErrArgumentNull)
	}
	return Consume[T, int](c, NewForEachConsumer(action))
}
