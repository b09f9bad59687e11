package fluxq

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/synoptiq/go-fluxq"

// DefaultTracerProvider is used when no provider is configured. It delegates
// to the global otel provider.
var DefaultTracerProvider trace.TracerProvider = otel.GetTracerProvider()

// TracedConsumer wraps a consumer and records its run as one span. The span
// opens with the first event of the run and ends in the disposal hook.
type TracedConsumer[T, R any] struct {
	consumer   Consumer[T, R]
	ctx        context.Context
	name       string
	tracer     trace.Tracer
	attributes []attribute.KeyValue

	span      trace.Span
	items     int64
	completed bool
	failure   error
}

// TracedConsumerOption is a function that configures a TracedConsumer.
type TracedConsumerOption[T, R any] func(*TracedConsumer[T, R])

// WithTracerName sets the span name.
func WithTracerName[T, R any](name string) TracedConsumerOption[T, R] {
	return func(tc *TracedConsumer[T, R]) {
		tc.name = name
	}
}

// WithTracerProvider sets the provider the tracer is taken from.
func WithTracerProvider[T, R any](provider trace.TracerProvider) TracedConsumerOption[T, R] {
	return func(tc *TracedConsumer[T, R]) {
		if provider != nil {
			tc.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithTracerAttributes adds attributes to the span.
func WithTracerAttributes[T, R any](attrs ...attribute.KeyValue) TracedConsumerOption[T, R] {
	return func(tc *TracedConsumer[T, R]) {
		tc.attributes = append(tc.attributes, attrs...)
	}
}

// NewTracedConsumer wraps consumer with OpenTelemetry tracing.
func NewTracedConsumer[T, R any](
	ctx context.Context,
	consumer Consumer[T, R],
	options ...TracedConsumerOption[T, R],
) *TracedConsumer[T, R] {
	if consumer == nil {
		panic("fluxq.NewTracedConsumer: consumer cannot be nil")
	}
	tc := &TracedConsumer[T, R]{
		consumer: consumer,
		ctx:      ctx,
		name:     "fluxq.run",
		tracer:   DefaultTracerProvider.Tracer(tracerName),
	}
	for _, option := range options {
		option(tc)
	}
	return tc
}

func (tc *TracedConsumer[T, R]) begin() {
	if tc.span != nil {
		return
	}
	_, tc.span = tc.tracer.Start(tc.ctx, tc.name, trace.WithAttributes(tc.attributes...))
}

// ProcessNext implements the Chain interface for TracedConsumer.
func (tc *TracedConsumer[T, R]) ProcessNext(item T) (ChainStatus, error) {
	tc.begin()
	tc.items++
	status, err := tc.consumer.ProcessNext(item)
	if err != nil && tc.failure == nil {
		tc.failure = err
		tc.span.RecordError(err)
	}
	return status, err
}

// ChainComplete implements the Chain interface for TracedConsumer.
func (tc *TracedConsumer[T, R]) ChainComplete() error {
	tc.begin()
	err := tc.consumer.ChainComplete()
	tc.completed = true
	tc.span.SetAttributes(attribute.Int64("fluxq.items", tc.items))
	if err != nil {
		tc.span.RecordError(err)
		tc.span.SetStatus(codes.Error, err.Error())
		return err
	}
	tc.span.SetStatus(codes.Ok, "")
	return nil
}

// ChainDispose implements the Chain interface for TracedConsumer.
func (tc *TracedConsumer[T, R]) ChainDispose() {
	tc.consumer.ChainDispose()
	tc.begin()
	if !tc.completed {
		reason := ErrRunAborted
		if tc.failure != nil {
			reason = tc.failure
		}
		tc.span.SetAttributes(attribute.Int64("fluxq.items", tc.items))
		tc.span.SetStatus(codes.Error, reason.Error())
	}
	tc.span.End()
}

func (tc *TracedConsumer[T, R]) runFailed(err error) {
	if tc.failure == nil {
		tc.begin()
		tc.failure = err
		tc.span.RecordError(err)
	}
	reportFailure[T](tc.consumer, err)
}

// Result returns the wrapped consumer's result.
func (tc *TracedConsumer[T, R]) Result() R {
	return tc.consumer.Result()
}
