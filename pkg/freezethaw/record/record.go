// Package record keeps a durable history of checkpoint attempts.
//
// The restore path needs to know which quiescence strategy was in effect
// when the snapshot was taken; a Record captures that at freeze time so it
// is never re-derived from configuration that may have changed since.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the current record format version.
const Version = 1

// Record describes one checkpoint attempt.
type Record struct {
	Version  int       `json:"version"`
	ID       string    `json:"id"`
	Strategy string    `json:"strategy"`
	FrozenAt time.Time `json:"frozen_at"`

	// RestoredAt is zero until the snapshot has been restored.
	RestoredAt time.Time `json:"restored_at,omitzero"`

	// Error is the quiescence failure, if any.
	Error string `json:"error,omitempty"`
}

// New creates a record for a freeze under the given strategy.
func New(strategy string) *Record {
	return &Record{
		Version:  Version,
		ID:       fmt.Sprintf("ckpt-%s", uuid.New().String()[:8]),
		Strategy: strategy,
		FrozenAt: time.Now().UTC(),
	}
}

// WithError records a quiescence failure.
func (r *Record) WithError(err error) *Record {
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Restored reports whether the record has been marked restored.
func (r *Record) Restored() bool {
	return !r.RestoredAt.IsZero()
}

// Marshal serializes a record to JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserializes a record from JSON.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
