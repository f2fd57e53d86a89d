package record

import (
	"errors"
)

// Store persists checkpoint records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record, overwriting any record with the same ID.
	Save(r *Record) error

	// Load retrieves a record by ID.
	// Returns ErrNotFound if it doesn't exist.
	Load(id string) (*Record, error)

	// Latest returns the most recently saved record.
	// Returns ErrNotFound if the store is empty.
	Latest() (*Record, error)

	// List returns all records, oldest first.
	List() ([]*Record, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for record operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("checkpoint record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("record store closed")
)
