package host

import (
	"context"
	"sync"
)

// MemoryStore provides an in-memory implementation of Store for tests and
// ephemeral hosts.
type MemoryStore struct {
	mu       sync.RWMutex
	payload  []byte
	revision string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored payload and revision.
func (m *MemoryStore) Load(context.Context) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.payload == nil {
		return nil, "", nil
	}
	out := make([]byte, len(m.payload))
	copy(out, m.payload)
	return out, m.revision, nil
}

// Replace swaps the payload after the revision guard passes.
func (m *MemoryStore) Replace(_ context.Context, payload []byte, expectedRevision string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkRevision(expectedRevision, m.revision); err != nil {
		return "", err
	}
	revision, err := newRevision()
	if err != nil {
		return "", err
	}
	m.payload = make([]byte, len(payload))
	copy(m.payload, payload)
	m.revision = revision
	return revision, nil
}
