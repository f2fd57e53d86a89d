package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/observability"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/record"
)

// MemoryStore is the record_store value selecting the in-memory store.
const MemoryStore = "memory"

// Settings are the coordinator settings read from a config file.
//
//	supported_strategies: [suspend-resume, reload-to-model]
//	default_strategy: suspend-resume
//	marker_path: /var/run/app/checkpoint.marker
//	overrides_path: /etc/app/restore.properties
//	record_store: /var/lib/app/checkpoints.db
//	hook_priority: 10
//	metrics: true
//	tracing: true
type Settings struct {
	SupportedStrategies []freezethaw.Strategy
	DefaultStrategy     freezethaw.Strategy
	MarkerPath          string
	OverridesPath       string
	RecordStore         string
	HookPriority        int
	Metrics             bool
	Tracing             bool
}

// DefaultSettings mirrors the coordinator defaults.
func DefaultSettings() Settings {
	return Settings{
		SupportedStrategies: []freezethaw.Strategy{freezethaw.SuspendResume, freezethaw.ReloadToModel},
		DefaultStrategy:     freezethaw.SuspendResume,
		RecordStore:         MemoryStore,
		HookPriority:        freezethaw.DefaultHookPriority,
	}
}

// Decode reads Settings from c. If c has a "checkpoint" section, that
// section is used; otherwise keys are read from the top level. Missing
// keys keep their defaults. Strategy names are parsed with
// freezethaw.ParseStrategy; an unknown name is an error.
func Decode(c Config) (Settings, error) {
	if c.Has("checkpoint") {
		c = c.Section("checkpoint")
	}

	s := DefaultSettings()

	if names := c.StringSlice("supported_strategies", nil); names != nil {
		s.SupportedStrategies = make([]freezethaw.Strategy, 0, len(names))
		for _, name := range names {
			strategy, err := freezethaw.ParseStrategy(name)
			if err != nil {
				return Settings{}, fmt.Errorf("supported_strategies: %w", err)
			}
			s.SupportedStrategies = append(s.SupportedStrategies, strategy)
		}
	}

	if name := c.String("default_strategy", ""); name != "" {
		strategy, err := freezethaw.ParseStrategy(name)
		if err != nil {
			return Settings{}, fmt.Errorf("default_strategy: %w", err)
		}
		s.DefaultStrategy = strategy
	}

	s.MarkerPath = c.String("marker_path", s.MarkerPath)
	s.OverridesPath = c.String("overrides_path", s.OverridesPath)
	s.RecordStore = strings.TrimSpace(c.String("record_store", s.RecordStore))
	s.HookPriority = c.Int("hook_priority", s.HookPriority)
	s.Metrics = c.Bool("metrics", s.Metrics)
	s.Tracing = c.Bool("tracing", s.Tracing)

	return s, nil
}

// Load reads Settings from a YAML or JSON file.
func Load(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return Decode(c)
}

// OpenRecordStore opens the configured record store: the in-memory store
// for "memory" or an empty value, otherwise a SQLite database at that path.
func (s Settings) OpenRecordStore() (record.Store, error) {
	if s.RecordStore == "" || strings.EqualFold(s.RecordStore, MemoryStore) {
		return record.NewMemoryStore(), nil
	}
	store, err := record.NewSQLiteStore(s.RecordStore)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return store, nil
}

// Options converts the settings into coordinator options. The record store
// is opened here and is closed by the coordinator's Close.
func (s Settings) Options(logger *slog.Logger) ([]freezethaw.Option, error) {
	store, err := s.OpenRecordStore()
	if err != nil {
		return nil, err
	}

	opts := []freezethaw.Option{
		freezethaw.WithSupportedStrategies(s.SupportedStrategies...),
		freezethaw.WithDefaultStrategy(s.DefaultStrategy),
		freezethaw.WithHookPriority(s.HookPriority),
		freezethaw.WithMarkerPath(s.MarkerPath),
		freezethaw.WithOverridesFile(s.OverridesPath),
		freezethaw.WithRecordStore(store),
	}
	if logger != nil {
		opts = append(opts, freezethaw.WithLogger(logger))
	}
	if s.Metrics {
		opts = append(opts, freezethaw.WithMetrics(observability.NewMetricsRecorder()))
	}
	if s.Tracing {
		opts = append(opts, freezethaw.WithTracing(observability.NewSpanManager()))
	}
	return opts, nil
}
