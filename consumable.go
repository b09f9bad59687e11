package fluxq

import (
	"iter"
	"math"
)

const maxInt = math.MaxInt

// Consumable is a deferred query: a source plus the ordered links to apply to
// it. Building a consumable never touches the source. Each call to Consume or
// Iterator starts an independent run, so a consumable over a reusable source
// may be run any number of times, including concurrently.
type Consumable[T any] interface {
	// Consume pushes every item through the composed chain into consumer.
	Consume(consumer Chain[T]) error
	// Iterator returns a pull-style view of a new run.
	Iterator() Iterator[T]

	compose(next Chain[T]) driver
}

// driver runs one composed chain against its source.
type driver interface {
	// step pushes at most one source item into the head stage.
	// done is true once the source is exhausted or the head reported Stop.
	step() (done bool, err error)
	// run pushes items until the source is exhausted or the head stops.
	run() error
	complete() error
	dispose() error
}

// chainDriver holds the head stage and implements the end-of-run hooks.
type chainDriver[T any] struct {
	head     Chain[T]
	disposed bool
}

func (d *chainDriver[T]) complete() error {
	return d.head.ChainComplete()
}

func (d *chainDriver[T]) dispose() error {
	if d.disposed {
		return nil
	}
	d.disposed = true
	d.head.ChainDispose()
	return nil
}

// runChain composes c onto consumer and drives it to the end. Disposal always
// runs; completion only runs when the items were pushed without error.
func runChain[T any](c Consumable[T], consumer Chain[T]) (err error) {
	if consumer == nil {
		return NewArgumentError("consumer", ErrArgumentNull)
	}
	d := c.compose(consumer)
	defer func() {
		if derr := d.dispose(); err == nil {
			err = derr
		}
	}()
	if err = d.run(); err != nil {
		reportFailure(consumer, err)
		return err
	}
	return d.complete()
}

// failureReporter is implemented by decorating consumers that report why a
// run failed. It is told the run error before disposal.
type failureReporter interface {
	runFailed(err error)
}

func reportFailure[T any](consumer Chain[T], err error) {
	if r, ok := consumer.(failureReporter); ok {
		r.runFailed(err)
	}
}

// Consume runs c into consumer and returns the consumer's result.
func Consume[T, R any](c Consumable[T], consumer Consumer[T, R]) (R, error) {
	var zero R
	if c == nil {
		return zero, NewArgumentError("consumable", ErrArgumentNull)
	}
	if consumer == nil {
		return zero, NewArgumentError("consumer", ErrArgumentNull)
	}
	if err := c.Consume(consumer); err != nil {
		return zero, err
	}
	return consumer.Result(), nil
}

// AddTail appends link to c. Appending to the empty consumable yields the
// empty consumable of the new element type; the link is never composed.
// It panics if c or link is nil.
func AddTail[T, U any](c Consumable[T], link Link[T, U]) Consumable[U] {
	requireNotNil("consumable", c == nil)
	requireNotNil("link", link == nil)
	if isEmpty(c) {
		return Empty[U]()
	}
	return &linked[T, U]{parent: c, link: link}
}

// All returns a range-over-func view of a new run of c. A run error is
// yielded once, with the zero value, as the final pair.
func All[T any](c Consumable[T]) iter.Seq2[T, error] {
	requireNotNil("consumable", c == nil)
	return func(yield func(T, error) bool) {
		y := &yieldChain[T]{yield: yield}
		if err := c.Consume(y); err != nil && !y.stopped {
			var zero T
			yield(zero, err)
		}
	}
}

type yieldChain[T any] struct {
	yield   func(T, error) bool
	stopped bool
}

func (y *yieldChain[T]) ProcessNext(item T) (ChainStatus, error) {
	if !y.yield(item, nil) {
		y.stopped = true
		return Stop, nil
	}
	return Flow, nil
}

func (*yieldChain[T]) ChainComplete() error { return nil }

func (*yieldChain[T]) ChainDispose() {}

type emptyConsumable[T any] struct{}

// Empty returns the canonical empty consumable.
func Empty[T any]() Consumable[T] {
	return emptyConsumable[T]{}
}

func isEmpty[T any](c Consumable[T]) bool {
	_, ok := c.(emptyConsumable[T])
	return ok
}

func (c emptyConsumable[T]) Consume(consumer Chain[T]) error {
	return runChain[T](c, consumer)
}

func (emptyConsumable[T]) Iterator() Iterator[T] {
	return emptyIterator[T]{}
}

func (emptyConsumable[T]) compose(next Chain[T]) driver {
	return &emptyDriver[T]{chainDriver: chainDriver[T]{head: next}}
}

type emptyDriver[T any] struct {
	chainDriver[T]
}

func (*emptyDriver[T]) step() (bool, error) { return true, nil }

func (*emptyDriver[T]) run() error { return nil }

// sliceConsumable is a query source over an in-memory slice.
type sliceConsumable[T any] struct {
	items []T
}

func (c *sliceConsumable[T]) Consume(consumer Chain[T]) error {
	return runChain[T](c, consumer)
}

func (c *sliceConsumable[T]) Iterator() Iterator[T] {
	return newSliceIterator(c.items)
}

func (c *sliceConsumable[T]) compose(next Chain[T]) driver {
	return &sliceDriver[T]{chainDriver: chainDriver[T]{head: next}, items: c.items}
}

type sliceDriver[T any] struct {
	chainDriver[T]
	items []T
	pos   int
}

func (d *sliceDriver[T]) step() (bool, error) {
	if d.pos >= len(d.items) {
		return true, nil
	}
	status, err := d.head.ProcessNext(d.items[d.pos])
	d.pos++
	if err != nil {
		return true, err
	}
	return status.IsStopped() || d.pos >= len(d.items), nil
}

func (d *sliceDriver[T]) run() error {
	for d.pos < len(d.items) {
		status, err := d.head.ProcessNext(d.items[d.pos])
		d.pos++
		if err != nil {
			return err
		}
		if status.IsStopped() {
			return nil
		}
	}
	return nil
}

// sourceConsumable opens its Source once per run.
type sourceConsumable[T any] struct {
	src Source[T]
}

func (c *sourceConsumable[T]) Consume(consumer Chain[T]) error {
	return runChain[T](c, consumer)
}

func (c *sourceConsumable[T]) Iterator() Iterator[T] {
	return newChainIterator[T](c)
}

func (c *sourceConsumable[T]) compose(next Chain[T]) driver {
	return &sourceDriver[T]{chainDriver: chainDriver[T]{head: next}, src: c.src}
}

type sourceDriver[T any] struct {
	chainDriver[T]
	src     Source[T]
	opened  bool
	indexed Indexed[T]
	length  int
	pos     int
	enum    Enumerator[T]
}

func (d *sourceDriver[T]) open() error {
	d.opened = true
	if idx, ok := d.src.(Indexed[T]); ok {
		d.indexed = idx
		d.length = idx.Len()
		return nil
	}
	enum, err := d.src.Enumerate()
	if err != nil {
		return NewSourceError("open", err)
	}
	d.enum = enum
	return nil
}

// advance fetches the next source item.
func (d *sourceDriver[T]) advance() (T, bool, error) {
	if d.indexed != nil {
		if d.pos >= d.length {
			var zero T
			return zero, false, nil
		}
		v := d.indexed.At(d.pos)
		d.pos++
		return v, true, nil
	}
	v, ok, err := d.enum.Next()
	if err != nil {
		return v, false, NewSourceError("next", err)
	}
	return v, ok, nil
}

func (d *sourceDriver[T]) step() (bool, error) {
	if !d.opened {
		if err := d.open(); err != nil {
			return true, err
		}
	}
	item, ok, err := d.advance()
	if err != nil || !ok {
		return true, err
	}
	status, err := d.head.ProcessNext(item)
	if err != nil {
		return true, err
	}
	return status.IsStopped(), nil
}

func (d *sourceDriver[T]) run() error {
	for {
		done, err := d.step()
		if err != nil || done {
			return err
		}
	}
}

func (d *sourceDriver[T]) dispose() error {
	if d.disposed {
		return nil
	}
	_ = d.chainDriver.dispose()
	if d.enum == nil {
		return nil
	}
	enum := d.enum
	d.enum = nil
	if err := enum.Close(); err != nil {
		return NewSourceError("close", err)
	}
	return nil
}

// linked is a consumable with one more link appended to its parent.
type linked[T, U any] struct {
	parent Consumable[T]
	link   Link[T, U]
}

func (c *linked[T, U]) Consume(consumer Chain[U]) error {
	return runChain[U](c, consumer)
}

func (c *linked[T, U]) Iterator() Iterator[U] {
	if it, ok := fastIterator(c.parent, c.link); ok {
		return it
	}
	return newChainIterator[U](c)
}

func (c *linked[T, U]) compose(next Chain[U]) driver {
	return c.parent.compose(c.link.Compose(next))
}
