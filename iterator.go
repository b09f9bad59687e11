package fluxq

// Iterator is a pull-style cursor over one run of a consumable.
//
//	it := q.Iterator()
//	defer it.Close()
//	for it.Next() {
//		use(it.Value())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// Each advance pushes one source item through the chain and buffers whatever
// reaches the end of it. SelectMany and its indexed form pull their inner
// sequences lazily too, so an infinite inner sequence yields items one advance
// at a time.
type Iterator[T any] interface {
	// Next advances to the next item and reports whether there is one.
	Next() bool
	// Value returns the current item. It is only meaningful after Next returned true.
	Value() T
	// Err returns the error that ended the run, if any.
	Err() error
	// Close ends the run early. Completion hooks do not run; disposal does.
	Close() error
	// Reset always returns ErrNotSupported.
	Reset() error
}

type iteratorState uint8

const (
	stateUninitialized iteratorState = iota
	stateRunning
	stateFinished
	statePostFinished
)

// chainIterator adapts the push chain to the Iterator contract. It is itself
// the terminal stage: every item the chain emits lands in a FIFO buffer, and
// each advance of the source happens only once the buffer is drained.
type chainIterator[T any] struct {
	source    Consumable[T]
	drv       driver
	state     iteratorState
	buffer    []T
	pos       int
	exhausted bool
	pull      pullState
	current   T
	err       error
}

func newChainIterator[T any](source Consumable[T]) *chainIterator[T] {
	return &chainIterator[T]{source: source}
}

// ProcessNext implements Chain for the terminal stage.
func (it *chainIterator[T]) ProcessNext(item T) (ChainStatus, error) {
	it.buffer = append(it.buffer, item)
	return Flow, nil
}

// ChainComplete implements Chain for the terminal stage.
func (*chainIterator[T]) ChainComplete() error { return nil }

// ChainDispose implements Chain for the terminal stage.
func (*chainIterator[T]) ChainDispose() {}

func (it *chainIterator[T]) pullState() *pullState {
	return &it.pull
}

func (it *chainIterator[T]) Next() bool {
	switch it.state {
	case stateUninitialized:
		it.drv = it.source.compose(it)
		it.state = stateRunning
		fallthrough
	case stateRunning:
		for it.pos >= len(it.buffer) {
			it.buffer = it.buffer[:0]
			it.pos = 0
			if it.exhausted && it.pull.resumable() == nil {
				return it.finish()
			}
			if err := it.advance(); err != nil {
				it.fail(err)
				return false
			}
		}
		return it.pop()
	case stateFinished:
		if it.pos < len(it.buffer) {
			return it.pop()
		}
		it.state = statePostFinished
		it.buffer = nil
		fallthrough
	default:
		var zero T
		it.current = zero
		return false
	}
}

func (it *chainIterator[T]) pop() bool {
	var zero T
	it.current = it.buffer[it.pos]
	it.buffer[it.pos] = zero
	it.pos++
	return true
}

// advance resumes a parked inner run, or pushes one source item through the
// chain when none is parked. A panic raised by a stage still disposes the run
// before it propagates.
func (it *chainIterator[T]) advance() error {
	ok := false
	defer func() {
		if !ok {
			it.state = statePostFinished
			_ = it.drv.dispose()
		}
	}()
	var err error
	if c := it.pull.resumable(); c != nil {
		var status ChainStatus
		status, err = c.resume()
		if status.IsStopped() {
			it.pull.stopped = true
			it.exhausted = true
		}
	} else {
		it.exhausted, err = it.drv.step()
	}
	ok = true
	return err
}

// finish runs the completion hook and disposal, then surfaces anything the
// completion flushed into the buffer.
func (it *chainIterator[T]) finish() bool {
	it.state = stateFinished
	err := it.drv.complete()
	if derr := it.drv.dispose(); err == nil {
		err = derr
	}
	if err != nil {
		it.fail(err)
		return false
	}
	return it.Next()
}

func (it *chainIterator[T]) fail(err error) {
	it.err = err
	if it.state == stateRunning {
		_ = it.drv.dispose()
	}
	it.state = statePostFinished
	it.buffer = nil
	it.pos = 0
	var zero T
	it.current = zero
}

func (it *chainIterator[T]) Value() T {
	return it.current
}

func (it *chainIterator[T]) Err() error {
	return it.err
}

func (it *chainIterator[T]) Close() error {
	var err error
	if it.state == stateRunning {
		err = it.drv.dispose()
	}
	it.state = statePostFinished
	it.buffer = nil
	var zero T
	it.current = zero
	return err
}

func (*chainIterator[T]) Reset() error {
	return ErrNotSupported
}

type emptyIterator[T any] struct{}

func (emptyIterator[T]) Next() bool { return false }

func (emptyIterator[T]) Value() T {
	var zero T
	return zero
}

func (emptyIterator[T]) Err() error { return nil }

func (emptyIterator[T]) Close() error { return nil }

func (emptyIterator[T]) Reset() error { return ErrNotSupported }

// sliceIterator walks a slice source with no chain at all.
type sliceIterator[T any] struct {
	items   []T
	pos     int
	current T
}

func newSliceIterator[T any](items []T) *sliceIterator[T] {
	return &sliceIterator[T]{items: items}
}

func (it *sliceIterator[T]) Next() bool {
	if it.pos >= len(it.items) {
		var zero T
		it.current = zero
		return false
	}
	it.current = it.items[it.pos]
	it.pos++
	return true
}

func (it *sliceIterator[T]) Value() T { return it.current }

func (*sliceIterator[T]) Err() error { return nil }

func (it *sliceIterator[T]) Close() error {
	it.pos = len(it.items)
	return nil
}

func (*sliceIterator[T]) Reset() error { return ErrNotSupported }
