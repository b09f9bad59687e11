package fluxq_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/synoptiq/go-fluxq"
)

func newTestRegistry(t *testing.T) *fluxq.Registry {
	t.Helper()
	registry := fluxq.NewRegistry()

	executors := map[fluxq.Executor]any{
		"is_even": func(v any) bool { return v.(int)%2 == 0 },
		"small":   func(v any) bool { return v.(int) < 4 },
		"square":  func(v any) any { return v.(int) * v.(int) },
		"repeat":  func(v any) fluxq.Consumable[any] { return fluxq.Repeat(v, v.(int)) },
		"noop":    func(any) {},
	}
	for name, fn := range executors {
		if err := registry.RegisterExecutor(name, fn); err != nil {
			t.Fatalf("Failed to register executor %s: %v", name, err)
		}
	}
	return registry
}

func intsAsAny(values ...int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func TestQueryFromConfig(t *testing.T) {
	yamlConfig := `version: "1.0.0"
name: "even_squares"
stages:
  - name: "keep_even"
    type: "where"
    properties:
      predicate: "is_even"
  - name: "square"
    type: "select"
    properties:
      selector: "square"
  - name: "drop_first"
    type: "skip"
    properties:
      count: 1
  - name: "first_three"
    type: "take"
    properties:
      count: 3
  - name: "pairs"
    type: "chunk"
    properties:
      size: 2`

	config, err := fluxq.ParseQueryConfig([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if config.Name != "even_squares" {
		t.Errorf("Expected query name 'even_squares', got '%s'", config.Name)
	}
	if len(config.Stages) != 5 {
		t.Fatalf("Expected 5 stages, got %d", len(config.Stages))
	}
	if props, ok := config.Stages[2].Properties.(*fluxq.CountProperties); !ok || props.Count != 1 {
		t.Errorf("Expected skip count 1, got %#v", config.Stages[2].Properties)
	}
	if props, ok := config.Stages[4].Properties.(*fluxq.ChunkProperties); !ok || props.Size != 2 {
		t.Errorf("Expected chunk size 2, got %#v", config.Stages[4].Properties)
	}

	query, err := fluxq.BuildQuery(config, newTestRegistry(t))
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}
	defer func() {
		if err := query.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	}()

	if query.Name() != "even_squares" {
		t.Errorf("Expected query name 'even_squares', got '%s'", query.Name())
	}
	expectedStages := []string{"keep_even", "square", "drop_first", "first_three", "pairs"}
	if !reflect.DeepEqual(query.Stages(), expectedStages) {
		t.Errorf("Expected stages %v, got %v", expectedStages, query.Stages())
	}

	result, err := query.Run(context.Background(), fluxq.FromSlice(intsAsAny(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)))
	if err != nil {
		t.Fatalf("Query run failed: %v", err)
	}

	expected := []any{[]any{16, 36}, []any{64}}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}

	// A query plan can be run any number of times.
	result, err = query.Run(context.Background(), fluxq.FromSlice(intsAsAny(2, 4)))
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if !reflect.DeepEqual(result, []any{[]any{16}}) {
		t.Errorf("Expected [[16]], got %v", result)
	}
}

func TestQueryApplyIsDeferred(t *testing.T) {
	yamlConfig := `name: "flatten"
stages:
  - name: "expand"
    type: "select_many"
    properties:
      selector: "repeat"
  - name: "while_small"
    type: "take_while"
    properties:
      predicate: "small"
  - name: "observe"
    type: "tap"
    properties:
      action: "noop"`

	config, err := fluxq.ParseQueryConfig([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if config.Version != fluxq.QueryVersion {
		t.Errorf("Expected default version %s, got %s", fluxq.QueryVersion, config.Version)
	}

	query, err := fluxq.BuildQuery(config, newTestRegistry(t))
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}

	src := &countingSource{items: []int{1, 2, 3, 4, 5}}
	applied := query.Apply(fluxq.Select(fluxq.FromSource[int](src), func(v int) any { return v }))
	if src.opened != 0 {
		t.Errorf("Apply must not open the source, opened %d times", src.opened)
	}

	result, err := fluxq.ToSlice(applied)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	expected := intsAsAny(1, 2, 2, 3, 3, 3)
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
	if src.opened != 1 || src.closed != 1 {
		t.Errorf("Expected the source opened and closed once, got %d and %d", src.opened, src.closed)
	}
}

func TestQueryWindowStage(t *testing.T) {
	yamlConfig := `name: "windows"
stages:
  - name: "sliding"
    type: "window"
    properties:
      size: 3
      slide: 2
  - name: "after_first"
    type: "skip_while"
    properties:
      predicate: "starts_low"`

	config, err := fluxq.ParseQueryConfig([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	registry := fluxq.NewRegistry()
	startsLow := func(v any) bool { return v.([]any)[0].(int) < 2 }
	if err := registry.RegisterExecutor("starts_low", startsLow); err != nil {
		t.Fatalf("Failed to register executor: %v", err)
	}

	query, err := fluxq.BuildQuery(config, registry)
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}

	result, err := query.Run(context.Background(), fluxq.FromSlice(intsAsAny(0, 1, 2, 3, 4, 5, 6, 7)))
	if err != nil {
		t.Fatalf("Query run failed: %v", err)
	}
	expected := []any{intsAsAny(3, 4, 5), intsAsAny(5, 6, 7)}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestLoadQueryConfigFromFile(t *testing.T) {
	yamlConfig := `version: "2.0.0"
name: "file_query"
stages:
  - name: "evens"
    type: "where"
    properties:
      predicate: "is_even"
metrics:
  enabled: true
  type: "noop"
tracing:
  enabled: true
  type: "noop"
debug:
  enabled: true`

	path := filepath.Join(t.TempDir(), "query.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := fluxq.LoadQueryConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config from file: %v", err)
	}

	if config.Version != "2.0.0" {
		t.Errorf("Expected version 2.0.0, got %s", config.Version)
	}
	if !config.Metrics.Enabled || config.Metrics.Type != fluxq.MetricsTypeNoop {
		t.Errorf("Unexpected metrics config: %+v", config.Metrics)
	}
	if !config.Tracing.Enabled || config.Tracing.Type != fluxq.TracingTypeNoop {
		t.Errorf("Unexpected tracing config: %+v", config.Tracing)
	}
	if !config.Debug.Enabled {
		t.Errorf("Expected debug to be enabled")
	}

	if _, err := fluxq.LoadQueryConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name          string
		yaml          string
		expectError   bool
		errorContains string
	}{
		{
			name: "Valid config",
			yaml: `name: "ok"
stages:
  - name: "first"
    type: "take"
    properties:
      count: 1`,
			expectError: false,
		},
		{
			name: "Missing query name",
			yaml: `stages:
  - name: "first"
    type: "take"
    properties:
      count: 1`,
			expectError:   true,
			errorContains: "Name",
		},
		{
			name:          "No stages",
			yaml:          `name: "empty"`,
			expectError:   true,
			errorContains: "Stages",
		},
		{
			name: "Unsupported stage type",
			yaml: `name: "bad"
stages:
  - name: "sorter"
    type: "order_by"
    properties:
      key: "id"`,
			expectError:   true,
			errorContains: "unsupported stage type 'order_by'",
		},
		{
			name: "Missing properties",
			yaml: `name: "bad"
stages:
  - name: "filter"
    type: "where"`,
			expectError:   true,
			errorContains: "has no properties",
		},
		{
			name: "Missing predicate",
			yaml: `name: "bad"
stages:
  - name: "filter"
    type: "where"
    properties: {}`,
			expectError:   true,
			errorContains: "Predicate",
		},
		{
			name: "Negative count",
			yaml: `name: "bad"
stages:
  - name: "skipper"
    type: "skip"
    properties:
      count: -1`,
			expectError:   true,
			errorContains: "Count",
		},
		{
			name: "Zero chunk size",
			yaml: `name: "bad"
stages:
  - name: "chunker"
    type: "chunk"
    properties:
      size: 0`,
			expectError:   true,
			errorContains: "Size",
		},
		{
			name: "Window without slide",
			yaml: `name: "bad"
stages:
  - name: "windower"
    type: "window"
    properties:
      size: 3`,
			expectError:   true,
			errorContains: "Slide",
		},
		{
			name: "OTLP tracing without endpoint",
			yaml: `name: "bad"
stages:
  - name: "first"
    type: "take"
    properties:
      count: 1
tracing:
  enabled: true
  type: "otlp"`,
			expectError:   true,
			errorContains: "Endpoint",
		},
		{
			name: "Unknown metrics type",
			yaml: `name: "bad"
stages:
  - name: "first"
    type: "take"
    properties:
      count: 1
metrics:
  enabled: true
  type: "statsd"`,
			expectError:   true,
			errorContains: "Type",
		},
		{
			name:          "Malformed YAML",
			yaml:          "name: [unterminated",
			expectError:   true,
			errorContains: "failed to parse query configuration",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fluxq.ParseQueryConfig([]byte(tc.yaml))

			if tc.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tc.errorContains != "" && !strings.Contains(err.Error(), tc.errorContains) {
					t.Errorf("Expected error containing '%s', got: %v", tc.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestBuildQueryExecutorErrors(t *testing.T) {
	testCases := []struct {
		name          string
		yaml          string
		errorContains string
	}{
		{
			name: "Unknown executor",
			yaml: `name: "q"
stages:
  - name: "filter"
    type: "where"
    properties:
      predicate: "is_prime"`,
			errorContains: "executor 'is_prime' not found",
		},
		{
			name: "Executor of the wrong kind",
			yaml: `name: "q"
stages:
  - name: "project"
    type: "select"
    properties:
      selector: "is_even"`,
			errorContains: "expected func(interface {}) interface {}",
		},
		{
			name: "Action used as predicate",
			yaml: `name: "q"
stages:
  - name: "filter"
    type: "take_while"
    properties:
      predicate: "noop"`,
			errorContains: "failed to build stage #0 ('filter')",
		},
	}

	registry := newTestRegistry(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := fluxq.ParseQueryConfig([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("Failed to parse config: %v", err)
			}
			_, err = fluxq.BuildQuery(config, registry)
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tc.errorContains) {
				t.Errorf("Expected error containing '%s', got: %v", tc.errorContains, err)
			}
		})
	}
}

func TestBuildQueryArguments(t *testing.T) {
	_, err := fluxq.BuildQuery(nil, fluxq.NewRegistry())
	if !errors.Is(err, fluxq.ErrArgumentNull) {
		t.Errorf("Expected ErrArgumentNull for a nil config, got %v", err)
	}

	config := &fluxq.QueryConfig{
		Version: fluxq.QueryVersion,
		Name:    "programmatic",
		Stages: []fluxq.StageConfig{
			{Name: "first_two", Type: fluxq.StageTypeTake, Properties: &fluxq.CountProperties{Count: 2}},
		},
	}
	// A nil registry falls back to the default one.
	query, err := fluxq.BuildQuery(config, nil)
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}

	if _, err := query.Run(context.Background(), nil); !errors.Is(err, fluxq.ErrArgumentNull) {
		t.Errorf("Expected ErrArgumentNull for a nil source, got %v", err)
	}

	result, err := query.Run(context.Background(), fluxq.FromSlice(intsAsAny(7, 8, 9)))
	if err != nil {
		t.Fatalf("Query run failed: %v", err)
	}
	if !reflect.DeepEqual(result, intsAsAny(7, 8)) {
		t.Errorf("Expected [7 8], got %v", result)
	}

	// Configs built in code are validated too.
	config.Stages[0].Properties = &fluxq.CountProperties{Count: -3}
	if _, err := fluxq.BuildQuery(config, nil); err == nil {
		t.Errorf("Expected a validation error for a negative count")
	}
}

func TestRegistryDuplicates(t *testing.T) {
	registry := fluxq.NewRegistry()

	if err := registry.RegisterExecutor("double", func(v any) any { return v.(int) * 2 }); err != nil {
		t.Fatalf("First registration failed: %v", err)
	}
	err := registry.RegisterExecutor("double", func(v any) any { return v })
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Expected duplicate executor error, got %v", err)
	}

	if _, ok := registry.GetExecutor("double"); !ok {
		t.Errorf("Expected executor 'double' to be registered")
	}
	if _, ok := registry.GetExecutor("triple"); ok {
		t.Errorf("Did not expect executor 'triple' to be registered")
	}

	err = registry.RegisterStageBuilder(fluxq.StageTypeWhere, nil)
	if err == nil || !strings.Contains(err.Error(), "stage builder already registered") {
		t.Errorf("Expected duplicate stage builder error, got %v", err)
	}
	if _, ok := registry.GetStageBuilder(fluxq.StageTypeWindow); !ok {
		t.Errorf("Expected a built-in builder for window stages")
	}

	if fluxq.DefaultRegistry() != fluxq.DefaultRegistry() {
		t.Errorf("Expected the default registry to be shared")
	}
}

func TestQueryObservability(t *testing.T) {
	yamlConfig := `name: "observed"
stages:
  - name: "keep_even"
    type: "where"
    properties:
      predicate: "is_even"
  - name: "square"
    type: "select"
    properties:
      selector: "square"
metrics:
  enabled: true
  type: "prometheus"
tracing:
  enabled: true
  type: "noop"
debug:
  enabled: true`

	config, err := fluxq.ParseQueryConfig([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	query, err := fluxq.BuildQuery(config, newTestRegistry(t),
		fluxq.WithBuildLogger(zerolog.New(&buf)),
		fluxq.WithPrometheusRegisterer(reg),
	)
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}

	materialized := 0
	for _, entry := range decodeLogLines(t, &buf) {
		if entry["message"] == "stage materialized" {
			materialized++
			if entry["query"] != "observed" {
				t.Errorf("Expected query field 'observed', got %v", entry["query"])
			}
		}
	}
	if materialized != 2 {
		t.Errorf("Expected 2 stage debug entries, got %d", materialized)
	}

	if _, err := query.Run(context.Background(), fluxq.FromSlice(intsAsAny(1, 2, 3, 4))); err != nil {
		t.Fatalf("Query run failed: %v", err)
	}

	expected := `
# HELP fluxq_runs_total Total number of query runs by outcome
# TYPE fluxq_runs_total counter
fluxq_runs_total{outcome="completed",query="observed"} 1
# HELP fluxq_items_total Total number of items delivered to consumers
# TYPE fluxq_items_total counter
fluxq_items_total{query="observed"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fluxq_runs_total", "fluxq_items_total"); err != nil {
		t.Errorf("Unexpected metrics: %v", err)
	}

	if err := query.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestQueryLoggingMetrics(t *testing.T) {
	yamlConfig := `name: "logged"
stages:
  - name: "first_one"
    type: "take"
    properties:
      count: 1
metrics:
  enabled: true
  type: "logging"`

	config, err := fluxq.ParseQueryConfig([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	var buf bytes.Buffer
	query, err := fluxq.BuildQuery(config, fluxq.NewRegistry(),
		fluxq.WithBuildLogger(zerolog.New(&buf).Level(zerolog.InfoLevel)))
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}

	if _, err := query.Run(context.Background(), fluxq.FromSlice(intsAsAny(5, 6))); err != nil {
		t.Fatalf("Query run failed: %v", err)
	}

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected exactly one log entry, got %d: %v", len(entries), entries)
	}
	if entries[0]["message"] != "run completed" || entries[0]["query"] != "logged" {
		t.Errorf("Unexpected log entry: %v", entries[0])
	}
	if items, ok := entries[0]["items"].(float64); !ok || items != 1 {
		t.Errorf("Expected 1 item logged, got %v", entries[0]["items"])
	}
}

// shutdownCountingProcessor records ended spans and counts provider shutdowns.
type shutdownCountingProcessor struct {
	*tracetest.SpanRecorder
	shutdowns int
}

func (p *shutdownCountingProcessor) Shutdown(ctx context.Context) error {
	p.shutdowns++
	return p.SpanRecorder.Shutdown(ctx)
}

const otlpTracingConfig = `
tracing:
  enabled: true
  type: "otlp"
  endpoint: "localhost:4317"`

func TestBuildQueryShutsDownTracingOnError(t *testing.T) {
	testCases := []struct {
		name   string
		stages string
	}{
		{
			name: "Unknown executor",
			stages: `name: "traced"
stages:
  - name: "filter"
    type: "where"
    properties:
      predicate: "is_prime"`,
		},
		{
			name: "Executor of the wrong kind",
			stages: `name: "traced"
stages:
  - name: "keep_even"
    type: "where"
    properties:
      predicate: "is_even"
  - name: "project"
    type: "select"
    properties:
      selector: "is_even"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := fluxq.ParseQueryConfig([]byte(tc.stages + otlpTracingConfig))
			if err != nil {
				t.Fatalf("Failed to parse config: %v", err)
			}
			processor := &shutdownCountingProcessor{SpanRecorder: tracetest.NewSpanRecorder()}
			if _, err := fluxq.BuildQuery(config, newTestRegistry(t), fluxq.WithSpanProcessor(processor)); err == nil {
				t.Fatal("Expected error but got none")
			}
			if processor.shutdowns != 1 {
				t.Errorf("Expected the tracer provider shut down once, got %d", processor.shutdowns)
			}
		})
	}

	t.Run("Built query owns the provider", func(t *testing.T) {
		config, err := fluxq.ParseQueryConfig([]byte(`name: "traced"
stages:
  - name: "keep_even"
    type: "where"
    properties:
      predicate: "is_even"` + otlpTracingConfig))
		if err != nil {
			t.Fatalf("Failed to parse config: %v", err)
		}
		processor := &shutdownCountingProcessor{SpanRecorder: tracetest.NewSpanRecorder()}
		query, err := fluxq.BuildQuery(config, newTestRegistry(t), fluxq.WithSpanProcessor(processor))
		if err != nil {
			t.Fatalf("Failed to build query: %v", err)
		}
		if processor.shutdowns != 0 {
			t.Errorf("Expected no shutdown before Query.Shutdown, got %d", processor.shutdowns)
		}
		if err := query.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		if processor.shutdowns != 1 {
			t.Errorf("Expected one shutdown, got %d", processor.shutdowns)
		}
	})
}

func TestQueryRunReportsFailure(t *testing.T) {
	config, err := fluxq.ParseQueryConfig([]byte(`name: "failing"
stages:
  - name: "keep_even"
    type: "where"
    properties:
      predicate: "is_even"
metrics:
  enabled: true
  type: "prometheus"` + otlpTracingConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	reg := prometheus.NewRegistry()
	processor := &shutdownCountingProcessor{SpanRecorder: tracetest.NewSpanRecorder()}
	query, err := fluxq.BuildQuery(config, newTestRegistry(t),
		fluxq.WithPrometheusRegisterer(reg),
		fluxq.WithSpanProcessor(processor),
	)
	if err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}
	t.Cleanup(func() {
		// Nothing listens on the endpoint; do not wait for the export.
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = query.Shutdown(ctx)
	})

	boom := errors.New("connection reset")
	source := fluxq.FromSource[any](fluxq.SourceFunc[any](func() (fluxq.Enumerator[any], error) {
		return nil, boom
	}))
	_, err = query.Run(context.Background(), source)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected source error, got %v", err)
	}

	expected := `
# HELP fluxq_runs_total Total number of query runs by outcome
# TYPE fluxq_runs_total counter
fluxq_runs_total{outcome="failed",query="failing"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fluxq_runs_total"); err != nil {
		t.Errorf("Unexpected metrics: %v", err)
	}

	spans := processor.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "fluxq.query.failing" {
		t.Errorf("Unexpected span name %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("Expected status code Error, got %v", span.Status().Code)
	}
	if span.Status().Description != err.Error() {
		t.Errorf("Expected the source error as description, got %q", span.Status().Description)
	}
}
