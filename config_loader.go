package fluxq

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// QueryVersion is the default version of the query configuration.
	QueryVersion = "1.0.0"
)

// DebugConfig holds the configuration for debugging a query.
type DebugConfig struct {
	// Enabled makes the builder log every stage it materializes.
	Enabled bool `yaml:"enabled,omitempty"`
}

// TracingType represents the tracing backend of a query.
type TracingType string

const (
	// TracingTypeOTLP exports spans over OTLP/gRPC.
	TracingTypeOTLP TracingType = "otlp"
	// TracingTypeNoop represents no tracing.
	TracingTypeNoop TracingType = "noop"
)

// TracingConfig holds the configuration for tracing query runs.
type TracingConfig struct {
	// Enabled turns tracing on
	Enabled bool `yaml:"enabled"`
	// Type selects the tracing backend
	Type TracingType `yaml:"type" validate:"omitempty,oneof=otlp noop"`
	// Endpoint of the collector, e.g. localhost:4317
	Endpoint string `yaml:"endpoint" validate:"required_if=Type otlp"`
}

// MetricsType represents the metrics backend of a query.
type MetricsType string

const (
	// MetricsTypePrometheus reports runs to Prometheus.
	MetricsTypePrometheus MetricsType = "prometheus"
	// MetricsTypeLogging reports runs as structured log entries.
	MetricsTypeLogging MetricsType = "logging"
	// MetricsTypeNoop represents no metrics.
	MetricsTypeNoop MetricsType = "noop"
)

// MetricsConfig holds the configuration for query run metrics.
type MetricsConfig struct {
	// Enabled turns run metrics on
	Enabled bool `yaml:"enabled"`
	// Type selects the metrics backend
	Type MetricsType `yaml:"type" validate:"omitempty,oneof=prometheus logging noop"`
}

// QueryConfig holds the parsed configuration for a single query plan.
type QueryConfig struct {
	Version string        `yaml:"version" validate:"required"`       // Version of the query configuration
	Name    string        `yaml:"name"    validate:"required"`       // Name the query is reported under
	Stages  []StageConfig `yaml:"stages"  validate:"required,min=1"` // Ordered stages of the query
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Debug   DebugConfig   `yaml:"debug,omitempty"`
}

// Validate checks the query configuration for correctness using struct tags.
func (qc *QueryConfig) Validate() error {
	validate := validator.New()

	if err := validate.Struct(qc); err != nil {
		return fmt.Errorf("query configuration validation failed: %w", err)
	}

	for i := range qc.Stages {
		stage := &qc.Stages[i]
		if err := stage.validate(validate); err != nil {
			return fmt.Errorf("validation failed for stage #%d ('%s'): %w", i, stage.Name, err)
		}
	}
	return nil
}

func (sc *StageConfig) validate(validate *validator.Validate) error {
	if err := validate.Struct(sc); err != nil {
		return err
	}
	if err := validate.Struct(sc.Properties); err != nil {
		return fmt.Errorf("invalid properties: %w", err)
	}
	return nil
}

// ParseQueryConfig parses and validates a YAML query plan.
func ParseQueryConfig(data []byte) (*QueryConfig, error) {
	var config QueryConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse query configuration: %w", err)
	}
	if config.Version == "" {
		config.Version = QueryVersion
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadQueryConfig reads, parses and validates a YAML query plan from path.
func LoadQueryConfig(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query configuration: %w", err)
	}
	return ParseQueryConfig(data)
}

// Executor names a function registered in a Registry.
type Executor string

// StageType represents the type of a query stage.
type StageType string

// StageType constants represent the stages a query plan can contain.
const (
	// StageTypeWhere keeps items matching a predicate.
	StageTypeWhere StageType = "where"
	// StageTypeSelect projects items.
	StageTypeSelect StageType = "select"
	// StageTypeSelectMany flattens an inner consumable per item.
	StageTypeSelectMany StageType = "select_many"
	// StageTypeSkip drops leading items.
	StageTypeSkip StageType = "skip"
	// StageTypeTake keeps leading items.
	StageTypeTake StageType = "take"
	// StageTypeSkipWhile drops leading items while a predicate holds.
	StageTypeSkipWhile StageType = "skip_while"
	// StageTypeTakeWhile keeps leading items while a predicate holds.
	StageTypeTakeWhile StageType = "take_while"
	// StageTypeChunk groups items into fixed-size slices.
	StageTypeChunk StageType = "chunk"
	// StageTypeWindow emits sliding windows.
	StageTypeWindow StageType = "window"
	// StageTypeTap runs a side effect per item.
	StageTypeTap StageType = "tap"
)

// StageConfigurer is implemented by all stage-specific property structs.
type StageConfigurer interface {
	// IsStageConfigurer is a marker method to make the interface explicit.
	IsStageConfigurer()
}

// StageConfig holds the configuration for a single stage of a query.
type StageConfig struct {
	Name       string          `yaml:"name"       validate:"required"`
	Type       StageType       `yaml:"type"       validate:"required"`
	Properties StageConfigurer `yaml:"properties" validate:"required"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for StageConfig.
// Properties are decoded into the struct matching the stage type.
func (sc *StageConfig) UnmarshalYAML(value *yaml.Node) error {
	var header struct {
		Name       string    `yaml:"name"`
		Type       StageType `yaml:"type"`
		Properties yaml.Node `yaml:"properties"`
	}
	if err := value.Decode(&header); err != nil {
		return err
	}

	sc.Name = header.Name
	sc.Type = header.Type

	var props StageConfigurer
	switch header.Type {
	case StageTypeWhere, StageTypeSkipWhile, StageTypeTakeWhile:
		props = &PredicateProperties{}
	case StageTypeSelect:
		props = &SelectProperties{}
	case StageTypeSelectMany:
		props = &SelectManyProperties{}
	case StageTypeSkip, StageTypeTake:
		props = &CountProperties{}
	case StageTypeChunk:
		props = &ChunkProperties{}
	case StageTypeWindow:
		props = &WindowProperties{}
	case StageTypeTap:
		props = &TapProperties{}
	default:
		return fmt.Errorf("unsupported stage type '%s' for stage '%s'", header.Type, header.Name)
	}

	if header.Properties.Kind == 0 {
		return fmt.Errorf("stage '%s' has no properties", header.Name)
	}
	if err := header.Properties.Decode(props); err != nil {
		return fmt.Errorf("failed to unmarshal properties for stage '%s' (type %s): %w", sc.Name, sc.Type, err)
	}

	sc.Properties = props
	return nil
}

// PredicateProperties configures where, skip_while and take_while stages.
type PredicateProperties struct {
	Predicate Executor `yaml:"predicate" validate:"required"` // func(any) bool
}

// IsStageConfigurer is a marker method.
func (*PredicateProperties) IsStageConfigurer() {}

// SelectProperties configures a select stage.
type SelectProperties struct {
	Selector Executor `yaml:"selector" validate:"required"` // func(any) any
}

// IsStageConfigurer is a marker method.
func (*SelectProperties) IsStageConfigurer() {}

// SelectManyProperties configures a select_many stage.
type SelectManyProperties struct {
	Selector Executor `yaml:"selector" validate:"required"` // func(any) Consumable[any]
}

// IsStageConfigurer is a marker method.
func (*SelectManyProperties) IsStageConfigurer() {}

// CountProperties configures skip and take stages.
type CountProperties struct {
	Count int `yaml:"count" validate:"gte=0"`
}

// IsStageConfigurer is a marker method.
func (*CountProperties) IsStageConfigurer() {}

// ChunkProperties configures a chunk stage.
type ChunkProperties struct {
	Size int `yaml:"size" validate:"gt=0"`
}

// IsStageConfigurer is a marker method.
func (*ChunkProperties) IsStageConfigurer() {}

// WindowProperties configures a window stage.
type WindowProperties struct {
	Size  int `yaml:"size"  validate:"gt=0"`
	Slide int `yaml:"slide" validate:"gt=0"`
}

// IsStageConfigurer is a marker method.
func (*WindowProperties) IsStageConfigurer() {}

// TapProperties configures a tap stage.
type TapProperties struct {
	Action Executor `yaml:"action" validate:"required"` // func(any)
}

// IsStageConfigurer is a marker method.
func (*TapProperties) IsStageConfigurer() {}
