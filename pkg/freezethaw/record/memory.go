package record

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory record store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]storedRecord
	seq    int
	closed bool
}

// storedRecord holds serialized record data with its insertion sequence.
type storedRecord struct {
	data     []byte
	sequence int
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]storedRecord),
	}
}

// Save implements Store. Re-saving a record keeps its original position.
func (m *MemoryStore) Save(r *Record) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	seq := m.seq + 1
	if existing, ok := m.data[r.ID]; ok {
		seq = existing.sequence
	} else {
		m.seq = seq
	}

	m.data[r.ID] = storedRecord{data: data, sequence: seq}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	stored, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return Unmarshal(stored.data)
}

// Latest implements Store.
func (m *MemoryStore) Latest() (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var latest *storedRecord
	for _, stored := range m.data {
		if latest == nil || stored.sequence > latest.sequence {
			s := stored
			latest = &s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return Unmarshal(latest.data)
}

// List implements Store.
func (m *MemoryStore) List() ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	stored := make([]storedRecord, 0, len(m.data))
	for _, s := range m.data {
		stored = append(stored, s)
	}
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].sequence < stored[j].sequence
	})

	out := make([]*Record, 0, len(stored))
	for _, s := range stored {
		r, err := Unmarshal(s.data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
