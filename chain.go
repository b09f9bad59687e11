package fluxq

import "strings"

// ChainStatus is the signal a stage returns after processing one item.
// It is a small bit set: Flow and Stop may be combined.
type ChainStatus uint8

const (
	// Filter means the item was absorbed and the run should continue.
	// It is the zero value.
	Filter ChainStatus = 0
	// Flow means an item (or something derived from it) reached the next stage.
	Flow ChainStatus = 1
	// Stop means the stage will not accept any further items in this run.
	Stop ChainStatus = 2
)

// IsStopped reports whether the Stop flag is set.
func (s ChainStatus) IsStopped() bool {
	return s&Stop != 0
}

// IsFlowing reports whether the Flow flag is set.
func (s ChainStatus) IsFlowing() bool {
	return s&Flow != 0
}

// String implements fmt.Stringer.
func (s ChainStatus) String() string {
	if s == Filter {
		return "Filter"
	}
	var parts []string
	if s.IsFlowing() {
		parts = append(parts, "Flow")
	}
	if s.IsStopped() {
		parts = append(parts, "Stop")
	}
	return strings.Join(parts, "|")
}

// Chain is one live stage of a running query. Items are pushed into it one at
// a time; the returned status tells the driver whether to keep going.
//
// A run calls ChainComplete at most once, after the source ended normally or
// a stage reported Stop. ChainDispose is called exactly once on every exit
// path, including errors and panics. Completion is skipped when the run fails.
type Chain[T any] interface {
	// ProcessNext accepts one item.
	ProcessNext(item T) (ChainStatus, error)
	// ChainComplete is the end-of-input hook.
	ChainComplete() error
	// ChainDispose releases per-run resources.
	ChainDispose()
}

// Activity is an embeddable base for intermediate stages. It forwards the
// completion and disposal hooks to the next stage and offers Next for
// pushing results downstream.
//
//	type doubler struct {
//		fluxq.Activity[int]
//	}
//
//	func (d *doubler) ProcessNext(v int) (fluxq.ChainStatus, error) {
//		return d.Next(v * 2)
//	}
type Activity[U any] struct {
	next Chain[U]
}

// NewActivity returns an Activity forwarding to next.
// It panics if next is nil.
func NewActivity[U any](next Chain[U]) Activity[U] {
	if next == nil {
		panic(NewArgumentError("next", ErrArgumentNull))
	}
	return Activity[U]{next: next}
}

// Next pushes item into the next stage and returns its status.
func (a *Activity[U]) Next(item U) (ChainStatus, error) {
	return a.next.ProcessNext(item)
}

// ChainComplete forwards completion to the next stage.
func (a *Activity[U]) ChainComplete() error {
	return a.next.ChainComplete()
}

// ChainDispose forwards disposal to the next stage.
func (a *Activity[U]) ChainDispose() {
	a.next.ChainDispose()
}

func (a *Activity[U]) pullState() *pullState {
	return pullStateOf(a.next)
}

// pullState links a pull adapter with the flattening stages of its chain.
// Cursors are registered in compose order, so the stage nearest the adapter
// comes first and is resumed first.
type pullState struct {
	cursors []innerCursor
	stopped bool
}

// innerCursor is a flattening stage that may hold a half-consumed inner run.
type innerCursor interface {
	parked() bool
	resume() (ChainStatus, error)
}

// resumable returns the parked cursor to resume before the source advances.
func (p *pullState) resumable() innerCursor {
	if p.stopped {
		return nil
	}
	for _, c := range p.cursors {
		if c.parked() {
			return c
		}
	}
	return nil
}

// pullStateOf returns the pull state of the adapter at the end of next, or
// nil when the chain is driven by push.
func pullStateOf[U any](next Chain[U]) *pullState {
	if p, ok := next.(interface{ pullState() *pullState }); ok {
		return p.pullState()
	}
	return nil
}
