// Package persist holds the small durable facts that outlive a checkpoint:
// the marker recording when the last snapshot was prepared, and the
// key/value override files consulted on restore.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoMarker indicates the marker file does not exist.
var ErrNoMarker = errors.New("checkpoint marker not found")

// Marker is a single-line file holding the milliseconds-since-epoch time at
// which the most recent checkpoint was prepared.
type Marker struct {
	path string
}

// NewMarker returns a marker stored at path.
func NewMarker(path string) *Marker {
	return &Marker{path: path}
}

// Path returns the marker file path.
func (m *Marker) Path() string {
	return m.path
}

// Write overwrites the marker with t. The file is replaced atomically.
func (m *Marker) Write(t time.Time) error {
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".*")
	if err != nil {
		return fmt.Errorf("create marker temp file: %w", err)
	}
	tmpName := tmp.Name()

	line := strconv.FormatInt(t.UnixMilli(), 10) + "\n"
	if _, err := tmp.WriteString(line); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close marker: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace marker: %w", err)
	}
	return nil
}

// Read returns the time stored in the marker.
// Returns ErrNoMarker if the file does not exist.
func (m *Marker) Read() (time.Time, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, ErrNoMarker
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read marker: %w", err)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse marker %s: %w", m.path, err)
	}
	return time.UnixMilli(ms), nil
}
