package fluxq

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Error messages
const (
	ErrStageBuilderExists = "stage builder already registered for type: %s"
	ErrExecutorExists     = "executor with name '%s' is already registered"
)

// Stage is one materialized step of a configured query.
type Stage func(Consumable[any]) Consumable[any]

// StageBuilder constructs a stage from its configuration, looking up named
// executors in the registry.
type StageBuilder func(stageConfig *StageConfig, registry *Registry) (Stage, error)

// Registry holds stage builders and the user-defined executors that
// configured stages refer to by name.
type Registry struct {
	mu            sync.RWMutex
	stageBuilders map[StageType]StageBuilder
	executors     map[Executor]any
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// NewRegistry creates a registry with the built-in stage builders and no executors.
func NewRegistry() *Registry {
	r := &Registry{
		stageBuilders: make(map[StageType]StageBuilder),
		executors:     make(map[Executor]any),
	}
	builders := []struct {
		stageType StageType
		builder   StageBuilder
	}{
		{StageTypeWhere, whereBuilder},
		{StageTypeSelect, selectBuilder},
		{StageTypeSelectMany, selectManyBuilder},
		{StageTypeSkip, skipBuilder},
		{StageTypeTake, takeBuilder},
		{StageTypeSkipWhile, skipWhileBuilder},
		{StageTypeTakeWhile, takeWhileBuilder},
		{StageTypeChunk, chunkBuilder},
		{StageTypeWindow, windowBuilder},
		{StageTypeTap, tapBuilder},
	}
	for _, b := range builders {
		if err := r.RegisterStageBuilder(b.stageType, b.builder); err != nil {
			panic(fmt.Sprintf("Failed to register built-in stage builder for %s: %v", b.stageType, err))
		}
	}
	return r
}

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// RegisterStageBuilder adds a new builder for a specific StageType.
// Returns an error if a builder is already registered for this type.
func (r *Registry) RegisterStageBuilder(stageType StageType, builder StageBuilder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stageBuilders[stageType]; exists {
		return fmt.Errorf(ErrStageBuilderExists, stageType)
	}
	r.stageBuilders[stageType] = builder
	return nil
}

// GetStageBuilder retrieves a builder function by its StageType.
func (r *Registry) GetStageBuilder(stageType StageType) (StageBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	builder, ok := r.stageBuilders[stageType]
	return builder, ok
}

// RegisterExecutor registers a user function under name. Stages expect
// func(any) bool for predicates, func(any) any for selectors,
// func(any) Consumable[any] for select_many and func(any) for tap actions.
// Returns an error if an executor is already registered with this name.
func (r *Registry) RegisterExecutor(name Executor, function any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[name]; exists {
		return fmt.Errorf(ErrExecutorExists, name)
	}
	r.executors[name] = function
	return nil
}

// GetExecutor retrieves a user-defined function by its name.
func (r *Registry) GetExecutor(name Executor) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[name]
	return executor, ok
}

func lookupExecutor[F any](registry *Registry, name Executor) (F, error) {
	var zero F
	executor, ok := registry.GetExecutor(name)
	if !ok {
		return zero, fmt.Errorf("executor '%s' not found in registry", name)
	}
	fn, ok := executor.(F)
	if !ok {
		return zero, fmt.Errorf("executor '%s' is a %T, expected %T", name, executor, zero)
	}
	return fn, nil
}

func predicateProps(stageConfig *StageConfig) (*PredicateProperties, error) {
	props, ok := stageConfig.Properties.(*PredicateProperties)
	if !ok {
		return nil, fmt.Errorf(
			"incorrect properties type for '%s': expected *PredicateProperties, got %T",
			stageConfig.Type,
			stageConfig.Properties,
		)
	}
	return props, nil
}

func predicateStage(
	stageConfig *StageConfig,
	registry *Registry,
	apply func(Consumable[any], func(any) bool) Consumable[any],
) (Stage, error) {
	props, err := predicateProps(stageConfig)
	if err != nil {
		return nil, err
	}
	predicate, err := lookupExecutor[func(any) bool](registry, props.Predicate)
	if err != nil {
		return nil, err
	}
	return func(c Consumable[any]) Consumable[any] { return apply(c, predicate) }, nil
}

func whereBuilder(stageConfig *StageConfig, registry *Registry) (Stage, error) {
	return predicateStage(stageConfig, registry, Where[any])
}

func skipWhileBuilder(stageConfig *StageConfig, registry *Registry) (Stage, error) {
	return predicateStage(stageConfig, registry, SkipWhile[any])
}

func takeWhileBuilder(stageConfig *StageConfig, registry *Registry) (Stage, error) {
	return predicateStage(stageConfig, registry, TakeWhile[any])
}

func selectBuilder(stageConfig *StageConfig, registry *Registry) (Stage, error) {
	props, ok := stageConfig.Properties.(*SelectProperties)
	if !ok {
		return nil, fmt.Errorf("incorrect properties type for 'select': expected *SelectProperties, got %T", stageConfig.Properties)
	}
	selector, err := lookupExecutor[func(any) any](registry, props.Selector)
	if err != nil {
		return nil, err
	}
	return func(c Consumable[any]) Consumable[any] { return Select(c, selector) }, nil
}

func selectManyBuilder(stageConfig *StageConfig, registry *Registry) (Stage, error) {
	props, ok := stageConfig.Properties.(*SelectManyProperties)
	if !ok {
		return nil, fmt.Errorf("incorrect properties type for 'select_many': expected *SelectManyProperties, got %T", stageConfig.Properties)
	}
	selector, err := lookupExecutor[func(any) Consumable[any]](registry, props.Selector)
	if err != nil {
		return nil, err
	}
	return func(c Consumable[any]) Consumable[any] { return SelectMany(c, selector) }, nil
}

func countProps(stageConfig *StageConfig) (*CountProperties, error) {
	props, ok := stageConfig.Properties.(*CountProperties)
	if !ok {
		return nil, fmt.Errorf(
			"incorrect properties type for '%s': expected *CountProperties, got %T",
			stageConfig.Type,
			stageConfig.Properties,
		)
	}
	return props, nil
}

func skipBuilder(stageConfig *StageConfig, _ *Registry) (Stage, error) {
	props, err := countProps(stageConfig)
	if err != nil {
		return nil, err
	}
	return func(c Consumable[any]) Consumable[any] { return Skip(c, props.Count) }, nil
}

func takeBuilder(stageConfig *StageConfig, _ *Registry) (Stage, error) {
	props, err := countProps(stageConfig)
	if err != nil {
		return nil, err
	}
	return func(c Consumable[any]) Consumable[any] { return Take(c, props.Count) }, nil
}

func asAny[T any](v T) any { return v }

func chunkBuilder(stageConfig *StageConfig, _ *Registry) (Stage, error) {
	props, ok := stageConfig.Properties.(*ChunkProperties)
	if !ok {
		return nil, fmt.Errorf("incorrect properties type for 'chunk': expected *ChunkProperties, got %T", stageConfig.Properties)
	}
	if props.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", props.Size)
	}
	return func(c Consumable[any]) Consumable[any] {
		return Select(Chunk(c, props.Size), asAny[[]any])
	}, nil
}

func windowBuilder(stageConfig *StageConfig, _ *Registry) (Stage, error) {
	props, ok := stageConfig.Properties.(*WindowProperties)
	if !ok {
		return nil, fmt.Errorf("incorrect properties type for 'window': expected *WindowProperties, got %T", stageConfig.Properties)
	}
	if props.Size <= 0 || props.Slide <= 0 {
		return nil, fmt.Errorf("window size and slide must be positive, got %d and %d", props.Size, props.Slide)
	}
	return func(c Consumable[any]) Consumable[any] {
		return Select(Window(c, props.Size, props.Slide), asAny[[]any])
	}, nil
}

func tapBuilder(stageConfig *StageConfig, registry *Registry) (Stage, error) {
	props, ok := stageConfig.Properties.(*TapProperties)
	if !ok {
		return nil, fmt.Errorf("incorrect properties type for 'tap': expected *TapProperties, got %T", stageConfig.Properties)
	}
	action, err := lookupExecutor[func(any)](registry, props.Action)
	if err != nil {
		return nil, err
	}
	return func(c Consumable[any]) Consumable[any] { return Tap(c, action) }, nil
}

type buildOptions struct {
	logger         zerolog.Logger
	registerer     prometheus.Registerer
	spanProcessors []sdktrace.SpanProcessor
}

// BuildOption configures BuildQuery.
type BuildOption func(*buildOptions)

// WithBuildLogger sets the logger used for debug output and the logging
// metrics backend. The default logger discards everything.
func WithBuildLogger(logger zerolog.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithPrometheusRegisterer sets where the prometheus metrics backend registers
// its metrics. Defaults to prometheus.DefaultRegisterer.
func WithPrometheusRegisterer(reg prometheus.Registerer) BuildOption {
	return func(o *buildOptions) {
		o.registerer = reg
	}
}

// WithSpanProcessor adds a span processor to the tracer provider created for
// otlp tracing, next to the exporter.
func WithSpanProcessor(sp sdktrace.SpanProcessor) BuildOption {
	return func(o *buildOptions) {
		if sp != nil {
			o.spanProcessors = append(o.spanProcessors, sp)
		}
	}
}

type queryStage struct {
	name  string
	apply Stage
}

// Query is a query plan built from configuration. It can be applied to any
// number of sources.
type Query struct {
	name             string
	stages           []queryStage
	metricsCollector MetricsCollector
	tracerProvider   trace.TracerProvider
	shutdown         func(context.Context) error
}

// BuildQuery validates config and materializes each stage through the registry.
func BuildQuery(config *QueryConfig, registry *Registry, options ...BuildOption) (*Query, error) {
	if config == nil {
		return nil, NewArgumentError("config", ErrArgumentNull)
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	opts := buildOptions{logger: zerolog.Nop()}
	for _, option := range options {
		option(&opts)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query configuration: %w", err)
	}

	logger := opts.logger.With().Str("query", config.Name).Logger()
	factory := NewObservabilityFactory(opts.logger, opts.registerer)
	factory.spanProcessors = opts.spanProcessors
	collector, err := factory.CreateMetricsCollector(config.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	provider, shutdown, err := factory.CreateTracerProvider(config.Tracing, config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	q := &Query{
		name:             config.Name,
		metricsCollector: collector,
		tracerProvider:   provider,
		shutdown:         shutdown,
	}
	for i := range config.Stages {
		stageConfig := &config.Stages[i]
		builder, ok := registry.GetStageBuilder(stageConfig.Type)
		if !ok {
			_ = shutdown(context.Background())
			return nil, fmt.Errorf("no stage builder registered for type '%s'", stageConfig.Type)
		}
		stage, errBuild := builder(stageConfig, registry)
		if errBuild != nil {
			_ = shutdown(context.Background())
			return nil, fmt.Errorf("failed to build stage #%d ('%s'): %w", i, stageConfig.Name, errBuild)
		}
		if config.Debug.Enabled {
			logger.Debug().
				Int("index", i).
				Str("stage", stageConfig.Name).
				Str("type", string(stageConfig.Type)).
				Msg("stage materialized")
		}
		q.stages = append(q.stages, queryStage{name: stageConfig.Name, apply: stage})
	}
	return q, nil
}

// Name returns the configured query name.
func (q *Query) Name() string {
	return q.name
}

// Stages returns the stage names in order.
func (q *Query) Stages() []string {
	names := make([]string, len(q.stages))
	for i, s := range q.stages {
		names[i] = s.name
	}
	return names
}

// Apply appends every stage to source and returns the composed consumable.
// The source is not touched.
func (q *Query) Apply(source Consumable[any]) Consumable[any] {
	c := source
	for _, s := range q.stages {
		c = s.apply(c)
	}
	return c
}

// Run applies the query to source and collects the results, reporting the
// run to the configured metrics collector and tracer provider.
func (q *Query) Run(ctx context.Context, source Consumable[any]) ([]any, error) {
	if source == nil {
		return nil, NewArgumentError("source", ErrArgumentNull)
	}
	metricated := NewMetricatedConsumer[any, []any](
		ctx,
		NewToSliceConsumer[any](0),
		WithMetricsCollector[any, []any](q.metricsCollector),
		WithMetricsQueryName[any, []any](q.name),
	)
	traced := NewTracedConsumer[any, []any](
		ctx,
		metricated,
		WithTracerProvider[any, []any](q.tracerProvider),
		WithTracerName[any, []any]("fluxq.query."+q.name),
	)
	return Consume[any, []any](q.Apply(source), traced)
}

// Shutdown flushes and stops the tracer provider created for the query.
func (q *Query) Shutdown(ctx context.Context) error {
	return q.shutdown(ctx)
}
