package persist

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/magiconair/properties"
)

// PropertySink receives override values.
type PropertySink interface {
	Set(key, value string) error
	Unset(key string) error
}

// EnvSink applies overrides to the process environment.
type EnvSink struct{}

// Set implements PropertySink.
func (EnvSink) Set(key, value string) error {
	return os.Setenv(key, value)
}

// Unset implements PropertySink.
func (EnvSink) Unset(key string) error {
	return os.Unsetenv(key)
}

// MapSink collects overrides in memory. Safe for concurrent use.
type MapSink struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMapSink returns a sink seeded with initial values.
func NewMapSink(initial map[string]string) *MapSink {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MapSink{values: values}
}

// Set implements PropertySink.
func (s *MapSink) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Unset implements PropertySink.
func (s *MapSink) Unset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Get returns a value and whether it is set.
func (s *MapSink) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Override is a single key/value entry. An empty Value clears the key.
type Override struct {
	Key   string
	Value string
}

// Overrides is an ordered set of overrides.
type Overrides []Override

// ParseOverrides parses key=value text. Variable expansion is disabled so
// values are applied verbatim.
func ParseOverrides(data []byte) (Overrides, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	return fromProperties(p), nil
}

// LoadOverrides reads an override file. A missing file yields no overrides.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	return ParseOverrides(data)
}

func fromProperties(p *properties.Properties) Overrides {
	keys := p.Keys()
	sort.Strings(keys)

	out := make(Overrides, 0, len(keys))
	for _, k := range keys {
		v, _ := p.Get(k)
		out = append(out, Override{Key: k, Value: v})
	}
	return out
}

// Apply writes every override to sink: non-empty values are set and empty
// values are unset. All entries are attempted; errors are joined.
func (o Overrides) Apply(sink PropertySink) error {
	var errs []error
	for _, ov := range o {
		var err error
		if ov.Value == "" {
			err = sink.Unset(ov.Key)
		} else {
			err = sink.Set(ov.Key, ov.Value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("override %s: %w", ov.Key, err))
		}
	}
	return errors.Join(errs...)
}
