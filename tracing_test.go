package fluxq_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/synoptiq/go-fluxq"
)

// Create a test-ready tracer using the actual SDK's implementation
// but with a test exporter to capture spans
func createTestTracer() (*tracetest.SpanRecorder, oteltrace.TracerProvider) {
	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(spanRecorder),
	)
	return spanRecorder, provider
}

// Helper function to find a span by name
func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// Helper function to find attribute in span
func findAttribute(span sdktrace.ReadOnlySpan, key string) (attribute.KeyValue, bool) {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			return attr, true
		}
	}
	return attribute.KeyValue{}, false
}

func hasErrorEvent(span sdktrace.ReadOnlySpan) bool {
	for _, event := range span.Events() {
		if event.Name == "exception" {
			return true
		}
	}
	return false
}

// TestTracedConsumer tests the basic TracedConsumer functionality
func TestTracedConsumer(t *testing.T) {
	recorder, provider := createTestTracer()

	traced := fluxq.NewTracedConsumer[int, int](
		context.Background(),
		fluxq.NewCountConsumer[int](),
		fluxq.WithTracerName[int, int]("count_run"),
		fluxq.WithTracerProvider[int, int](provider),
		fluxq.WithTracerAttributes[int, int](attribute.String("test", "value")),
	)

	n, err := fluxq.Consume[int, int](fluxq.Range(0, 7), traced)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("Expected 7, got %d", n)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected exactly one span, got %d", len(spans))
	}

	span := findSpanByName(spans, "count_run")
	if span == nil {
		t.Fatal("Span 'count_run' not found")
	}

	if attr, ok := findAttribute(span, "test"); !ok || attr.Value.AsString() != "value" {
		t.Errorf("Custom attribute 'test=value' not found in span attributes: %v", span.Attributes())
	}
	if attr, ok := findAttribute(span, "fluxq.items"); !ok || attr.Value.AsInt64() != 7 {
		t.Errorf("Attribute 'fluxq.items=7' not found or incorrect: %v", span.Attributes())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("Expected status code Ok, got %v", span.Status().Code)
	}
}

// TestTracedConsumerCompletionError tests that a failed completion marks the span
func TestTracedConsumerCompletionError(t *testing.T) {
	recorder, provider := createTestTracer()

	traced := fluxq.NewTracedConsumer[string, string](
		context.Background(),
		fluxq.NewFirstConsumer[string](nil),
		fluxq.WithTracerName[string, string]("first_run"),
		fluxq.WithTracerProvider[string, string](provider),
	)

	_, err := fluxq.Consume[string, string](fluxq.Empty[string](), traced)
	if !errors.Is(err, fluxq.ErrNoElements) {
		t.Fatalf("Expected ErrNoElements, got %v", err)
	}

	span := findSpanByName(recorder.Ended(), "first_run")
	if span == nil {
		t.Fatal("Span 'first_run' not found")
	}
	if span.Status().Code != codes.Error {
		t.Errorf("Expected status code Error, got %v", span.Status().Code)
	}
	if span.Status().Description != fluxq.ErrNoElements.Error() {
		t.Errorf("Expected the completion error as description, got %q", span.Status().Description)
	}
	if !hasErrorEvent(span) {
		t.Errorf("Expected error event not recorded: %v", span.Events())
	}
}

// TestTracedConsumerProcessError tests a run that fails while items flow
func TestTracedConsumerProcessError(t *testing.T) {
	recorder, provider := createTestTracer()

	traced := fluxq.NewTracedConsumer[int8, int8](
		context.Background(),
		fluxq.NewAccumulatingConsumer[int8, int8, int8](fluxq.IntegerSum[int8]{}),
		fluxq.WithTracerProvider[int8, int8](provider),
	)

	_, err := fluxq.Consume[int8, int8](fluxq.FromSlice([]int8{120, 120}), traced)
	if !errors.Is(err, fluxq.ErrOverflow) {
		t.Fatalf("Expected ErrOverflow, got %v", err)
	}

	span := findSpanByName(recorder.Ended(), "fluxq.run")
	if span == nil {
		t.Fatal("Span 'fluxq.run' not found")
	}
	if span.Status().Code != codes.Error {
		t.Errorf("Expected status code Error, got %v", span.Status().Code)
	}
	if span.Status().Description != err.Error() {
		t.Errorf("Expected the run error as description, got %q", span.Status().Description)
	}
	if got := len(span.Events()); got != 1 {
		t.Errorf("Expected the error recorded once, got %d events", got)
	}
	if !hasErrorEvent(span) {
		t.Errorf("Expected error event not recorded: %v", span.Events())
	}
	if attr, ok := findAttribute(span, "fluxq.items"); !ok || attr.Value.AsInt64() != 2 {
		t.Errorf("Attribute 'fluxq.items=2' not found or incorrect: %v", span.Attributes())
	}
}

// TestTracedConsumerSourceFailure tests a run whose source fails before any item flows
func TestTracedConsumerSourceFailure(t *testing.T) {
	recorder, provider := createTestTracer()
	boom := errors.New("connection reset")
	src := fluxq.FromSource[int](fluxq.SourceFunc[int](func() (fluxq.Enumerator[int], error) {
		return nil, boom
	}))

	traced := fluxq.NewTracedConsumer[int, int](
		context.Background(),
		fluxq.NewCountConsumer[int](),
		fluxq.WithTracerName[int, int]("count_run"),
		fluxq.WithTracerProvider[int, int](provider),
	)
	_, err := fluxq.Consume[int, int](src, traced)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected source error, got %v", err)
	}

	span := findSpanByName(recorder.Ended(), "count_run")
	if span == nil {
		t.Fatal("Span 'count_run' not found")
	}
	if span.Status().Code != codes.Error {
		t.Errorf("Expected status code Error, got %v", span.Status().Code)
	}
	if span.Status().Description != err.Error() {
		t.Errorf("Expected the source error as description, got %q", span.Status().Description)
	}
	if !hasErrorEvent(span) {
		t.Errorf("Expected error event not recorded: %v", span.Events())
	}
}

// TestTracedConsumerSpanPerRun tests that every run gets its own span
func TestTracedConsumerSpanPerRun(t *testing.T) {
	recorder, provider := createTestTracer()
	q := fluxq.Select(fluxq.Range(0, 3), func(v int) int { return v + 1 })

	for i := 0; i < 3; i++ {
		traced := fluxq.NewTracedConsumer[int, []int](
			context.Background(),
			fluxq.NewToSliceConsumer[int](0),
			fluxq.WithTracerProvider[int, []int](provider),
		)
		if _, err := fluxq.Consume[int, []int](q, traced); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if got := len(recorder.Ended()); got != 3 {
		t.Errorf("Expected 3 spans, got %d", got)
	}
}

// createNoopTracer creates a tracer that doesn't record any spans
func createNoopTracer() oteltrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.NeverSample()),
	)
}

// BenchmarkTracedConsumer benchmarks the overhead of run tracing
func BenchmarkTracedConsumer(b *testing.B) {
	q := fluxq.Select(fluxq.Range(0, 1000), func(v int) int { return v * 2 })

	providers := map[string]oteltrace.TracerProvider{
		"NeverSample": createNoopTracer(),
	}
	_, providers["Recording"] = createTestTracer()

	for name, provider := range providers {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				traced := fluxq.NewTracedConsumer[int, int](
					context.Background(),
					fluxq.NewCountConsumer[int](),
					fluxq.WithTracerProvider[int, int](provider),
				)
				_, _ = fluxq.Consume[int, int](q, traced)
			}
		})
	}
}
