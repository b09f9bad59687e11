package fluxq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// LoggingMetricsCollector writes run lifecycle events as structured log entries.
type LoggingMetricsCollector struct {
	logger zerolog.Logger
}

// Ensure LoggingMetricsCollector implements MetricsCollector.
var _ MetricsCollector = (*LoggingMetricsCollector)(nil)

// NewLoggingMetricsCollector creates a collector writing to logger.
func NewLoggingMetricsCollector(logger zerolog.Logger) *LoggingMetricsCollector {
	return &LoggingMetricsCollector{logger: logger}
}

// RunStarted logs when a run starts.
func (l *LoggingMetricsCollector) RunStarted(_ context.Context, queryName string) {
	l.logger.Debug().Str("query", queryName).Msg("run started")
}

// RunCompleted logs when a run ends.
func (l *LoggingMetricsCollector) RunCompleted(
	_ context.Context,
	queryName string,
	items int64,
	duration time.Duration,
	err error,
) {
	if err != nil {
		l.logger.Warn().
			Str("query", queryName).
			Int64("items", items).
			Dur("duration", duration).
			Err(err).
			Msg("run failed")
		return
	}
	l.logger.Info().
		Str("query", queryName).
		Int64("items", items).
		Dur("duration", duration).
		Msg("run completed")
}

// PrometheusMetricsCollector implements MetricsCollector for Prometheus.
type PrometheusMetricsCollector struct {
	runsStarted  *prometheus.CounterVec
	runs         *prometheus.CounterVec
	items        *prometheus.CounterVec
	runsDuration *prometheus.HistogramVec
}

// Ensure PrometheusMetricsCollector implements MetricsCollector.
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates the collector's metrics and registers
// them with reg. Metrics already registered by an earlier collector are reused.
func NewPrometheusMetricsCollector(reg prometheus.Registerer) (*PrometheusMetricsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusMetricsCollector{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxq_runs_started_total",
			Help: "Total number of query runs started",
		}, []string{"query"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxq_runs_total",
			Help: "Total number of query runs by outcome",
		}, []string{"query", "outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxq_items_total",
			Help: "Total number of items delivered to consumers",
		}, []string{"query"}),
		runsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fluxq_run_duration_seconds",
			Help:    "Duration of query runs in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
	}

	var err error
	if p.runsStarted, err = registerVec(reg, p.runsStarted); err != nil {
		return nil, err
	}
	if p.runs, err = registerVec(reg, p.runs); err != nil {
		return nil, err
	}
	if p.items, err = registerVec(reg, p.items); err != nil {
		return nil, err
	}
	if p.runsDuration, err = registerVec(reg, p.runsDuration); err != nil {
		return nil, err
	}
	return p, nil
}

func registerVec[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register prometheus collector: %w", err)
	}
	return c, nil
}

// RunStarted implements MetricsCollector.
func (p *PrometheusMetricsCollector) RunStarted(_ context.Context, queryName string) {
	p.runsStarted.WithLabelValues(queryName).Inc()
}

// RunCompleted implements MetricsCollector.
func (p *PrometheusMetricsCollector) RunCompleted(
	_ context.Context,
	queryName string,
	items int64,
	duration time.Duration,
	err error,
) {
	outcome := "completed"
	switch {
	case errors.Is(err, ErrRunAborted):
		outcome = "aborted"
	case err != nil:
		outcome = "failed"
	}
	p.runs.WithLabelValues(queryName, outcome).Inc()
	p.items.WithLabelValues(queryName).Add(float64(items))
	p.runsDuration.WithLabelValues(queryName).Observe(duration.Seconds())
}

// ObservabilityFactory creates observability components from query configuration.
type ObservabilityFactory struct {
	logger         zerolog.Logger
	registerer     prometheus.Registerer
	spanProcessors []sdktrace.SpanProcessor
}

// NewObservabilityFactory creates a new factory for observability components.
func NewObservabilityFactory(logger zerolog.Logger, registerer prometheus.Registerer) *ObservabilityFactory {
	return &ObservabilityFactory{logger: logger, registerer: registerer}
}

// CreateMetricsCollector creates a MetricsCollector based on the metrics configuration.
func (f *ObservabilityFactory) CreateMetricsCollector(config MetricsConfig) (MetricsCollector, error) {
	if !config.Enabled {
		return DefaultMetricsCollector, nil
	}

	switch config.Type {
	case MetricsTypeNoop:
		return &NoopMetricsCollector{}, nil
	case MetricsTypeLogging:
		return NewLoggingMetricsCollector(f.logger), nil
	case MetricsTypePrometheus:
		collector, err := NewPrometheusMetricsCollector(f.registerer)
		if err != nil {
			return nil, err
		}
		return collector, nil
	default:
		return nil, fmt.Errorf("unsupported metrics type: %s", config.Type)
	}
}

// CreateTracerProvider creates a TracerProvider based on the tracing
// configuration. The returned shutdown function flushes and stops exporters.
func (f *ObservabilityFactory) CreateTracerProvider(
	config TracingConfig,
	serviceName string,
) (trace.TracerProvider, func(context.Context) error, error) {
	nothing := func(context.Context) error { return nil }
	if !config.Enabled {
		return DefaultTracerProvider, nothing, nil
	}

	switch config.Type {
	case TracingTypeNoop:
		return noop.NewTracerProvider(), nothing, nil
	case TracingTypeOTLP:
		tp, err := f.createOTLPTracerProvider(config, serviceName)
		if err != nil {
			return nil, nil, err
		}
		return tp, tp.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unsupported tracing type: %s", config.Type)
	}
}

func (f *ObservabilityFactory) createOTLPTracerProvider(
	config TracingConfig,
	serviceName string,
) (*sdktrace.TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("otlp endpoint is required")
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	}
	for _, sp := range f.spanProcessors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
