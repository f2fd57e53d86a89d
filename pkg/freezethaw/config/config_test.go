package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/config"
)

// TestString verifies string extraction with defaults.
func TestString(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal string
		want       string
	}{
		{"key exists", map[string]any{"marker_path": "/tmp/m"}, "marker_path", "default", "/tmp/m"},
		{"key missing", map[string]any{"other": "value"}, "marker_path", "default", "default"},
		{"empty string", map[string]any{"marker_path": ""}, "marker_path", "default", ""},
		{"wrong type", map[string]any{"marker_path": 123}, "marker_path", "default", "default"},
		{"nil map", nil, "marker_path", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String(tt.key, tt.defaultVal))
		})
	}
}

// TestInt verifies integer extraction, including JSON float64 values.
func TestInt(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 10, 10},
		{"int64", int64(-5), -5},
		{"whole float", float64(7), 7},
		{"fractional float", 7.5, 1},
		{"string", "7", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"hook_priority": tt.val})
			assert.Equal(t, tt.want, cfg.Int("hook_priority", 1))
		})
	}
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "1m30s", 90 * time.Second},
		{"int seconds", 5, 5 * time.Second},
		{"float seconds", 0.5, 500 * time.Millisecond},
		{"duration", 3 * time.Millisecond, 3 * time.Millisecond},
		{"invalid string", "soon", time.Second},
		{"bool", true, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"grace": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("grace", time.Second))
		})
	}
}

func TestBoolAndStringSlice(t *testing.T) {
	cfg := config.New(map[string]any{
		"metrics": true,
		"names":   []any{"a", "b"},
		"mixed":   []any{"a", 1},
		"typed":   []string{"x"},
	})

	assert.True(t, cfg.Bool("metrics", false))
	assert.False(t, cfg.Bool("tracing", false))
	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("names", nil))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("mixed", []string{"d"}))
	assert.Equal(t, []string{"x"}, cfg.StringSlice("typed", nil))
	assert.Nil(t, cfg.StringSlice("missing", nil))
}

func TestSection(t *testing.T) {
	cfg := config.New(map[string]any{
		"checkpoint": map[string]any{"marker_path": "/m"},
		"scalar":     "x",
	})

	assert.Equal(t, "/m", cfg.Section("checkpoint").String("marker_path", ""))
	assert.False(t, cfg.Section("scalar").Has("marker_path"))
	assert.False(t, cfg.Section("missing").Has("marker_path"))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("checkpoint:\n  hook_priority: 3\n"), 0o600))
	jsonPath := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"hook_priority": 4}`), 0o600))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Section("checkpoint").Int("hook_priority", 0))

	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Int("hook_priority", 0))

	_, err = config.FromFile(filepath.Join(dir, "app.toml"))
	assert.ErrorContains(t, err, "read config file")

	tomlPath := filepath.Join(dir, "app.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("x = 1\n"), 0o600))
	_, err = config.FromFile(tomlPath)
	assert.ErrorContains(t, err, "unsupported config file extension")

	t.Setenv("FREEZETHAW_STATE_DIR", "/srv/state")
	envPath := filepath.Join(dir, "env.yml")
	require.NoError(t, os.WriteFile(envPath, []byte("marker_path: ${FREEZETHAW_STATE_DIR}/checkpoint.marker\n"), 0o600))
	cfg, err = config.FromFile(envPath)
	require.NoError(t, err)
	assert.Equal(t, "/srv/state/checkpoint.marker", cfg.String("marker_path", ""))

	cfg, err = config.FromYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Raw())

	_, err = config.FromYAML([]byte("a: [unclosed"))
	assert.ErrorContains(t, err, "parse yaml")
	_, err = config.FromJSON([]byte("{"))
	assert.ErrorContains(t, err, "parse json")
}
