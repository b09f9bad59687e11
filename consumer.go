package fluxq

// Consumer is a terminal stage that produces a result once the run ends.
type Consumer[T, R any] interface {
	Chain[T]
	// Result returns the value built by the run.
	Result() R
}

// ConsumerBase is an embeddable base for consumers. It stores the result and
// provides no-op completion and disposal hooks.
//
//	type sumConsumer struct {
//		fluxq.ConsumerBase[int]
//	}
//
//	func (s *sumConsumer) ProcessNext(v int) (fluxq.ChainStatus, error) {
//		s.SetResult(s.Result() + v)
//		return fluxq.Flow, nil
//	}
type ConsumerBase[R any] struct {
	result R
}

// NewConsumerBase returns a ConsumerBase with an initial result.
func NewConsumerBase[R any](initial R) ConsumerBase[R] {
	return ConsumerBase[R]{result: initial}
}

// Result returns the current result.
func (c *ConsumerBase[R]) Result() R {
	return c.result
}

// SetResult replaces the result.
func (c *ConsumerBase[R]) SetResult(result R) {
	c.result = result
}

// ChainComplete implements Chain. It does nothing.
func (*ConsumerBase[R]) ChainComplete() error { return nil }

// ChainDispose implements Chain. It does nothing.
func (*ConsumerBase[R]) ChainDispose() {}

// ConsumerFunc adapts a function to a result-less consumer. Returning false
// stops the run.
type ConsumerFunc[T any] func(T) bool

// ProcessNext implements the Chain interface for ConsumerFunc.
func (f ConsumerFunc[T]) ProcessNext(item T) (ChainStatus, error) {
	if f(item) {
		return Flow, nil
	}
	return Stop | Flow, nil
}

// ChainComplete implements the Chain interface for ConsumerFunc.
func (ConsumerFunc[T]) ChainComplete() error { return nil }

// ChainDispose implements the Chain interface for ConsumerFunc.
func (ConsumerFunc[T]) ChainDispose() {}
