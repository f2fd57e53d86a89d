package freezethaw

import (
	"log/slog"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/observability"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/persist"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/record"
)

// DefaultHookPriority is the priority the coordinator registers its freeze
// and thaw hooks with unless WithHookPriority says otherwise.
const DefaultHookPriority = 0

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

type coordinatorConfig struct {
	supported       []Strategy
	defaultStrategy Strategy
	hookPriority    int
	marker          *persist.Marker
	overridesPath   string
	sink            persist.PropertySink
	store           record.Store
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	spans           observability.SpanManager
}

func defaultCoordinatorConfig() coordinatorConfig {
	return coordinatorConfig{
		supported:       []Strategy{SuspendResume, ReloadToModel},
		defaultStrategy: SuspendResume,
		hookPriority:    DefaultHookPriority,
		sink:            persist.EnvSink{},
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
	}
}

// WithSupportedStrategies sets the strategies a trigger may request.
// The default is SuspendResume and ReloadToModel.
func WithSupportedStrategies(strategies ...Strategy) Option {
	return func(c *coordinatorConfig) {
		c.supported = append([]Strategy(nil), strategies...)
	}
}

// WithDefaultStrategy sets the strategy used when a trigger names none and
// when the engine freezes without a trigger. It must be in the supported set.
func WithDefaultStrategy(s Strategy) Option {
	return func(c *coordinatorConfig) {
		c.defaultStrategy = s
	}
}

// WithHookPriority sets the priority of the coordinator's engine hooks.
func WithHookPriority(priority int) Option {
	return func(c *coordinatorConfig) {
		c.hookPriority = priority
	}
}

// WithMarker sets the marker overwritten after a successful ReloadToModel
// quiescence. Without one, no marker is written.
func WithMarker(m *persist.Marker) Option {
	return func(c *coordinatorConfig) {
		c.marker = m
	}
}

// WithMarkerPath is WithMarker(persist.NewMarker(path)). An empty path
// disables the marker.
func WithMarkerPath(path string) Option {
	return func(c *coordinatorConfig) {
		if path == "" {
			c.marker = nil
			return
		}
		c.marker = persist.NewMarker(path)
	}
}

// WithOverridesFile sets the key=value file applied to the property sink on
// a ReloadToModel restore, before the paused boot is released.
func WithOverridesFile(path string) Option {
	return func(c *coordinatorConfig) {
		c.overridesPath = path
	}
}

// WithPropertySink sets where restore overrides are applied.
// The default is the process environment.
func WithPropertySink(sink persist.PropertySink) Option {
	return func(c *coordinatorConfig) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithRecordStore sets where checkpoint records are kept.
// The default is an in-memory store.
func WithRecordStore(store record.Store) Option {
	return func(c *coordinatorConfig) {
		c.store = store
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *coordinatorConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics.
func WithMetrics(recorder observability.MetricsRecorder) Option {
	return func(c *coordinatorConfig) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithTracing enables OpenTelemetry spans around the freeze and thaw hooks.
func WithTracing(spans observability.SpanManager) Option {
	return func(c *coordinatorConfig) {
		if spans != nil {
			c.spans = spans
		}
	}
}
