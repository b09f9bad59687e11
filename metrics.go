package fluxq

import (
	"context"
	"errors"
	"time"
)

// ErrRunAborted is reported to collectors when a run was disposed without
// reaching completion and without a known error, as when a stage panics.
var ErrRunAborted = errors.New("run ended without completion")

// MetricsCollector receives run lifecycle events. Nothing is reported per
// item; item counts arrive with the end-of-run event.
type MetricsCollector interface {
	// RunStarted is called when the first event of a run reaches the consumer.
	RunStarted(ctx context.Context, queryName string)
	// RunCompleted is called once per run. err is nil for a successful run,
	// the error the run failed with, or ErrRunAborted.
	RunCompleted(ctx context.Context, queryName string, items int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a metrics collector that does nothing.
type NoopMetricsCollector struct{}

// Ensure NoopMetricsCollector implements MetricsCollector
var _ MetricsCollector = (*NoopMetricsCollector)(nil)

// RunStarted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) RunStarted(_ context.Context, _ string) {}

// RunCompleted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) RunCompleted(_ context.Context, _ string, _ int64, _ time.Duration, _ error) {
}

// DefaultMetricsCollector is the default metrics collector used when none is provided.
var DefaultMetricsCollector MetricsCollector = &NoopMetricsCollector{}

// MetricatedConsumer wraps a consumer and reports its run to a MetricsCollector.
type MetricatedConsumer[T, R any] struct {
	consumer         Consumer[T, R]
	ctx              context.Context
	queryName        string
	metricsCollector MetricsCollector

	started  bool
	reported bool
	start    time.Time
	items    int64
	failure  error
}

// MetricatedConsumerOption is a function that configures a MetricatedConsumer.
type MetricatedConsumerOption[T, R any] func(*MetricatedConsumer[T, R])

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector[T, R any](collector MetricsCollector) MetricatedConsumerOption[T, R] {
	return func(mc *MetricatedConsumer[T, R]) {
		if collector != nil {
			mc.metricsCollector = collector
		}
	}
}

// WithMetricsQueryName sets the name the run is reported under.
func WithMetricsQueryName[T, R any](name string) MetricatedConsumerOption[T, R] {
	return func(mc *MetricatedConsumer[T, R]) {
		mc.queryName = name
	}
}

// NewMetricatedConsumer wraps consumer. The decorator is single-use, like the
// consumer it wraps.
func NewMetricatedConsumer[T, R any](
	ctx context.Context,
	consumer Consumer[T, R],
	options ...MetricatedConsumerOption[T, R],
) *MetricatedConsumer[T, R] {
	if consumer == nil {
		panic("fluxq.NewMetricatedConsumer: consumer cannot be nil")
	}
	mc := &MetricatedConsumer[T, R]{
		consumer:         consumer,
		ctx:              ctx,
		queryName:        "fluxq.query",
		metricsCollector: DefaultMetricsCollector,
	}
	for _, option := range options {
		option(mc)
	}
	return mc
}

func (mc *MetricatedConsumer[T, R]) begin() {
	if mc.started {
		return
	}
	mc.started = true
	mc.start = time.Now()
	mc.metricsCollector.RunStarted(mc.ctx, mc.queryName)
}

func (mc *MetricatedConsumer[T, R]) report(err error) {
	if mc.reported {
		return
	}
	mc.reported = true
	mc.metricsCollector.RunCompleted(mc.ctx, mc.queryName, mc.items, time.Since(mc.start), err)
}

// ProcessNext implements the Chain interface for MetricatedConsumer.
func (mc *MetricatedConsumer[T, R]) ProcessNext(item T) (ChainStatus, error) {
	mc.begin()
	mc.items++
	return mc.consumer.ProcessNext(item)
}

// ChainComplete implements the Chain interface for MetricatedConsumer.
func (mc *MetricatedConsumer[T, R]) ChainComplete() error {
	mc.begin()
	err := mc.consumer.ChainComplete()
	mc.report(err)
	return err
}

// ChainDispose implements the Chain interface for MetricatedConsumer.
func (mc *MetricatedConsumer[T, R]) ChainDispose() {
	mc.consumer.ChainDispose()
	mc.begin()
	if mc.failure != nil {
		mc.report(mc.failure)
		return
	}
	mc.report(ErrRunAborted)
}

func (mc *MetricatedConsumer[T, R]) runFailed(err error) {
	if mc.failure == nil {
		mc.failure = err
	}
	reportFailure[T](mc.consumer, err)
}

// Result returns the wrapped consumer's result.
func (mc *MetricatedConsumer[T, R]) Result() R {
	return mc.consumer.Result()
}
