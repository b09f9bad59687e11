package fluxq

// SelectManyLink maps each item to an inner consumable and pushes every inner
// item downstream in order. The inner run happens inside the outer stage, so
// a Stop from downstream ends both the inner run and the outer one.
//
// Under an Iterator the inner run is pulled one item at a time: once an inner
// item reaches the end of the chain the stage parks the inner iterator and
// resumes it on the next advance.
type SelectManyLink[T, U any] struct {
	Selector func(T) Consumable[U]
}

// NewSelectManyLink creates a SelectManyLink. It panics if selector is nil.
func NewSelectManyLink[T, U any](selector func(T) Consumable[U]) *SelectManyLink[T, U] {
	requireNotNil("selector", selector == nil)
	return &SelectManyLink[T, U]{Selector: selector}
}

// Compose implements the Link interface for SelectManyLink.
func (l *SelectManyLink[T, U]) Compose(next Chain[U]) Chain[T] {
	return &selectManyActivity[T, U]{
		Activity: NewActivity(next),
		selector: l.Selector,
		inner:    newInnerRun[U, U](next),
	}
}

type selectManyActivity[T, U any] struct {
	Activity[U]
	selector func(T) Consumable[U]
	inner    *innerRun[U, U]
}

func (a *selectManyActivity[T, U]) ProcessNext(item T) (ChainStatus, error) {
	inner := a.selector(item)
	if inner == nil {
		return Filter, NewArgumentError("selector result", ErrArgumentNull)
	}
	return a.inner.start(inner, identity[U])
}

func (a *selectManyActivity[T, U]) ChainDispose() {
	a.inner.close()
	a.Activity.ChainDispose()
}

func identity[T any](v T) T { return v }

// Pair carries an outer item together with the inner consumable selected for it.
type Pair[T, U any] struct {
	Source T
	Inner  Consumable[U]
}

// SelectManyIndexedLink maps each item and its position to an inner
// consumable and emits the pair. FlattenLink expands the pairs.
type SelectManyIndexedLink[T, U any] struct {
	Selector func(T, int) Consumable[U]
}

// NewSelectManyIndexedLink creates a SelectManyIndexedLink. It panics if selector is nil.
func NewSelectManyIndexedLink[T, U any](selector func(T, int) Consumable[U]) *SelectManyIndexedLink[T, U] {
	requireNotNil("selector", selector == nil)
	return &SelectManyIndexedLink[T, U]{Selector: selector}
}

// Compose implements the Link interface for SelectManyIndexedLink.
func (l *SelectManyIndexedLink[T, U]) Compose(next Chain[Pair[T, U]]) Chain[T] {
	return &selectManyIndexedActivity[T, U]{Activity: NewActivity(next), selector: l.Selector}
}

type selectManyIndexedActivity[T, U any] struct {
	Activity[Pair[T, U]]
	selector func(T, int) Consumable[U]
	index    int
}

func (a *selectManyIndexedActivity[T, U]) ProcessNext(item T) (ChainStatus, error) {
	i := a.index
	a.index++
	return a.Next(Pair[T, U]{Source: item, Inner: a.selector(item, i)})
}

// FlattenLink expands pairs produced by SelectManyIndexedLink, combining the
// outer item with each inner item through ResultSelector.
type FlattenLink[T, U, R any] struct {
	ResultSelector func(T, U) R
}

// NewFlattenLink creates a FlattenLink. It panics if resultSelector is nil.
func NewFlattenLink[T, U, R any](resultSelector func(T, U) R) *FlattenLink[T, U, R] {
	requireNotNil("resultSelector", resultSelector == nil)
	return &FlattenLink[T, U, R]{ResultSelector: resultSelector}
}

// Compose implements the Link interface for FlattenLink.
func (l *FlattenLink[T, U, R]) Compose(next Chain[R]) Chain[Pair[T, U]] {
	return &flattenActivity[T, U, R]{
		Activity:       NewActivity(next),
		resultSelector: l.ResultSelector,
		inner:          newInnerRun[U, R](next),
	}
}

type flattenActivity[T, U, R any] struct {
	Activity[R]
	resultSelector func(T, U) R
	inner          *innerRun[U, R]
}

func (a *flattenActivity[T, U, R]) ProcessNext(pair Pair[T, U]) (ChainStatus, error) {
	if pair.Inner == nil {
		return Filter, NewArgumentError("selector result", ErrArgumentNull)
	}
	source := pair.Source
	return a.inner.start(pair.Inner, func(v U) R { return a.resultSelector(source, v) })
}

func (a *flattenActivity[T, U, R]) ChainDispose() {
	a.inner.close()
	a.Activity.ChainDispose()
}

// innerRun feeds the items of one inner consumable into the outer chain.
//
// Without a pull adapter at the end of the chain the inner consumable runs to
// completion inside start. Under an Iterator it is opened as an iterator of its
// own and parked after every item that flowed to the end of the chain.
type innerRun[U, R any] struct {
	next    Chain[R]
	pull    *pullState
	it      Iterator[U]
	project func(U) R
}

func newInnerRun[U, R any](next Chain[R]) *innerRun[U, R] {
	r := &innerRun[U, R]{next: next, pull: pullStateOf(next)}
	if r.pull != nil {
		r.pull.cursors = append(r.pull.cursors, r)
	}
	return r
}

func (r *innerRun[U, R]) start(inner Consumable[U], project func(U) R) (ChainStatus, error) {
	if r.pull == nil {
		fw := &forwarder[U, R]{next: r.next, project: project}
		err := inner.Consume(fw)
		return fw.status, err
	}
	r.it = inner.Iterator()
	r.project = project
	return r.resume()
}

func (r *innerRun[U, R]) resume() (ChainStatus, error) {
	var status ChainStatus
	for r.it.Next() {
		s, err := r.next.ProcessNext(r.project(r.it.Value()))
		status |= s
		if err != nil {
			r.close()
			return status, err
		}
		if s.IsStopped() {
			r.close()
			return status, nil
		}
		if s.IsFlowing() {
			return status, nil
		}
	}
	err := r.it.Err()
	r.close()
	return status, err
}

func (r *innerRun[U, R]) parked() bool {
	return r.it != nil
}

func (r *innerRun[U, R]) close() {
	if r.it == nil {
		return
	}
	it := r.it
	r.it = nil
	r.project = nil
	_ = it.Close()
}

// forwarder hands inner items to the outer chain. Its own completion and
// disposal hooks are no-ops: the inner run must not end the outer one.
type forwarder[U, R any] struct {
	next    Chain[R]
	project func(U) R
	status  ChainStatus
}

func (f *forwarder[U, R]) ProcessNext(item U) (ChainStatus, error) {
	status, err := f.next.ProcessNext(f.project(item))
	f.status |= status
	return status, err
}

func (*forwarder[U, R]) ChainComplete() error { return nil }

func (*forwarder[U, R]) ChainDispose() {}
