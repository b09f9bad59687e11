package fluxq

// Link is an immutable description of one query step. Compose builds the
// live stage for a single run, wired to next. A link holds no run state;
// everything that changes while items flow lives in the stage it returns.
type Link[In, Out any] interface {
	Compose(next Chain[Out]) Chain[In]
}

// LinkFunc adapts a function to the Link interface.
type LinkFunc[In, Out any] func(next Chain[Out]) Chain[In]

// Compose implements the Link interface for LinkFunc.
func (f LinkFunc[In, Out]) Compose(next Chain[Out]) Chain[In] {
	return f(next)
}

type composedLink[A, B, C any] struct {
	first  Link[A, B]
	second Link[B, C]
}

func (l *composedLink[A, B, C]) Compose(next Chain[C]) Chain[A] {
	return l.first.Compose(l.second.Compose(next))
}

// Compose returns a link that applies first and then second.
// It panics if either link is nil.
func Compose[A, B, C any](first Link[A, B], second Link[B, C]) Link[A, C] {
	requireNotNil("first", first == nil)
	requireNotNil("second", second == nil)
	return &composedLink[A, B, C]{first: first, second: second}
}

type identityLink[T any] struct{}

func (identityLink[T]) Compose(next Chain[T]) Chain[T] {
	return next
}

// Identity returns the link that composes to its next stage unchanged.
func Identity[T any]() Link[T, T] {
	return identityLink[T]{}
}

// SelectLink projects each item through Selector.
type SelectLink[T, U any] struct {
	Selector func(T) U
}

// NewSelectLink creates a SelectLink. It panics if selector is nil.
func NewSelectLink[T, U any](selector func(T) U) *SelectLink[T, U] {
	requireNotNil("selector", selector == nil)
	return &SelectLink[T, U]{Selector: selector}
}

// Compose implements the Link interface for SelectLink.
func (l *SelectLink[T, U]) Compose(next Chain[U]) Chain[T] {
	return &selectActivity[T, U]{Activity: NewActivity(next), selector: l.Selector}
}

type selectActivity[T, U any] struct {
	Activity[U]
	selector func(T) U
}

func (a *selectActivity[T, U]) ProcessNext(item T) (ChainStatus, error) {
	return a.Next(a.selector(item))
}

// SelectIndexedLink projects each item together with its zero-based position.
type SelectIndexedLink[T, U any] struct {
	Selector func(T, int) U
}

// NewSelectIndexedLink creates a SelectIndexedLink. It panics if selector is nil.
func NewSelectIndexedLink[T, U any](selector func(T, int) U) *SelectIndexedLink[T, U] {
	requireNotNil("selector", selector == nil)
	return &SelectIndexedLink[T, U]{Selector: selector}
}

// Compose implements the Link interface for SelectIndexedLink.
func (l *SelectIndexedLink[T, U]) Compose(next Chain[U]) Chain[T] {
	return &selectIndexedActivity[T, U]{Activity: NewActivity(next), selector: l.Selector}
}

type selectIndexedActivity[T, U any] struct {
	Activity[U]
	selector func(T, int) U
	index    int
}

func (a *selectIndexedActivity[T, U]) ProcessNext(item T) (ChainStatus, error) {
	i := a.index
	a.index++
	return a.Next(a.selector(item, i))
}

// WhereLink passes items for which Predicate holds.
type WhereLink[T any] struct {
	Predicate func(T) bool
}

// NewWhereLink creates a WhereLink. It panics if predicate is nil.
func NewWhereLink[T any](predicate func(T) bool) *WhereLink[T] {
	requireNotNil("predicate", predicate == nil)
	return &WhereLink[T]{Predicate: predicate}
}

// Compose implements the Link interface for WhereLink.
func (l *WhereLink[T]) Compose(next Chain[T]) Chain[T] {
	return &whereActivity[T]{Activity: NewActivity(next), predicate: l.Predicate}
}

type whereActivity[T any] struct {
	Activity[T]
	predicate func(T) bool
}

func (a *whereActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	if a.predicate(item) {
		return a.Next(item)
	}
	return Filter, nil
}

// WhereIndexedLink passes items for which Predicate holds, given their position.
type WhereIndexedLink[T any] struct {
	Predicate func(T, int) bool
}

// NewWhereIndexedLink creates a WhereIndexedLink. It panics if predicate is nil.
func NewWhereIndexedLink[T any](predicate func(T, int) bool) *WhereIndexedLink[T] {
	requireNotNil("predicate", predicate == nil)
	return &WhereIndexedLink[T]{Predicate: predicate}
}

// Compose implements the Link interface for WhereIndexedLink.
func (l *WhereIndexedLink[T]) Compose(next Chain[T]) Chain[T] {
	return &whereIndexedActivity[T]{Activity: NewActivity(next), predicate: l.Predicate}
}

type whereIndexedActivity[T any] struct {
	Activity[T]
	predicate func(T, int) bool
	index     int
}

func (a *whereIndexedActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	i := a.index
	a.index++
	if a.predicate(item, i) {
		return a.Next(item)
	}
	return Filter, nil
}

// SkipLink drops the first Count items. It is the unfused form of Skip.
type SkipLink[T any] struct {
	Count int
}

// Compose implements the Link interface for SkipLink.
func (l *SkipLink[T]) Compose(next Chain[T]) Chain[T] {
	return &skipActivity[T]{Activity: NewActivity(next), count: l.Count}
}

type skipActivity[T any] struct {
	Activity[T]
	count int
	index int
}

func (a *skipActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	if a.index < a.count {
		a.index++
		return Filter, nil
	}
	return a.Next(item)
}

// TakeLink passes the first Count items and then stops. It is the unfused
// form of Take.
type TakeLink[T any] struct {
	Count int
}

// Compose implements the Link interface for TakeLink.
func (l *TakeLink[T]) Compose(next Chain[T]) Chain[T] {
	return &takeActivity[T]{Activity: NewActivity(next), count: l.Count}
}

type takeActivity[T any] struct {
	Activity[T]
	count int
	index int
}

func (a *takeActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	if a.index >= a.count {
		return Stop, nil
	}
	a.index++
	status, err := a.Next(item)
	if a.index >= a.count {
		status |= Stop
	}
	return status, err
}

// SliceLink passes the items whose position lies in [Lower, Upper). Upper is
// exclusive; use math.MaxInt for an unbounded range.
type SliceLink[T any] struct {
	Lower int
	Upper int
}

// Compose implements the Link interface for SliceLink.
func (l *SliceLink[T]) Compose(next Chain[T]) Chain[T] {
	return &sliceActivity[T]{Activity: NewActivity(next), lower: l.Lower, upper: l.Upper}
}

type sliceActivity[T any] struct {
	Activity[T]
	lower, upper int
	index        int
}

func (a *sliceActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	if a.index < a.lower {
		a.index++
		return Filter, nil
	}
	if a.index >= a.upper {
		return Stop, nil
	}
	a.index++
	status, err := a.Next(item)
	if a.index >= a.upper {
		status |= Stop
	}
	return status, err
}

// SkipWhileLink drops items while Predicate holds, then passes everything.
type SkipWhileLink[T any] struct {
	Predicate func(T) bool
}

// Compose implements the Link interface for SkipWhileLink.
func (l *SkipWhileLink[T]) Compose(next Chain[T]) Chain[T] {
	return &skipWhileActivity[T]{Activity: NewActivity(next), predicate: l.Predicate}
}

type skipWhileActivity[T any] struct {
	Activity[T]
	predicate func(T) bool
	passing   bool
}

func (a *skipWhileActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	if !a.passing {
		if a.predicate(item) {
			return Filter, nil
		}
		a.passing = true
	}
	return a.Next(item)
}

// TakeWhileLink passes items while Predicate holds and stops at the first
// item that fails it. That item is not passed on.
type TakeWhileLink[T any] struct {
	Predicate func(T) bool
}

// Compose implements the Link interface for TakeWhileLink.
func (l *TakeWhileLink[T]) Compose(next Chain[T]) Chain[T] {
	return &takeWhileActivity[T]{Activity: NewActivity(next), predicate: l.Predicate}
}

type takeWhileActivity[T any] struct {
	Activity[T]
	predicate func(T) bool
}

func (a *takeWhileActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	if !a.predicate(item) {
		return Stop, nil
	}
	return a.Next(item)
}

// TapLink calls Action for every item and passes it on unchanged.
type TapLink[T any] struct {
	Action func(T)
}

// Compose implements the Link interface for TapLink.
func (l *TapLink[T]) Compose(next Chain[T]) Chain[T] {
	return &tapActivity[T]{Activity: NewActivity(next), action: l.Action}
}

type tapActivity[T any] struct {
	Activity[T]
	action func(T)
}

func (a *tapActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	a.action(item)
	return a.Next(item)
}
