package credentials

import (
	"context"
	"sync"
)

// Memory implements in-memory record storage. Records are ephemeral and
// lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*Record),
	}
}

// Save stores a record under the key, replacing any prior record.
func (m *Memory) Save(ctx context.Context, key string, rec *Record) error {
	prepared, err := prepare(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = prepared
	return nil
}

// Load returns the record for the key. Expired records are absent; those
// without a refresh token are purged.
func (m *Memory) Load(ctx context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Expired() {
		if rec.RefreshToken == "" {
			delete(m.records, key)
		}
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// LoadAny returns the record for the key regardless of expiry.
func (m *Memory) LoadAny(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Delete removes the record for the key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Clear removes all records.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record)
	return nil
}
