package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// Memory is an in-process Gateway for tests and ephemeral runs. It applies
// the same revision discipline as the durable store.
type Memory struct {
	mu       sync.Mutex
	doc      gatewaycfg.Document
	revision string
	history  []HistoryEntry
	nextID   int64
}

var (
	_ Gateway   = (*Memory)(nil)
	_ Historian = (*Memory)(nil)
)

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{}
}

// Fetch implements Gateway.
func (m *Memory) Fetch(ctx context.Context) (gatewaycfg.Document, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone(), m.revision, nil
}

// Persist implements Gateway.
func (m *Memory) Persist(ctx context.Context, doc gatewaycfg.Document, expectedRevision string) (string, error) {
	clone := doc.Clone()
	clone.Normalize()
	if err := clone.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if expectedRevision != m.revision {
		return "", fmt.Errorf("revision %q is stale (current %q): %w", expectedRevision, m.revision, ErrRevisionConflict)
	}
	revision, err := NewRevision()
	if err != nil {
		return "", err
	}
	m.doc = clone
	m.revision = revision
	m.nextID++
	m.history = append(m.history, HistoryEntry{
		ID:        m.nextID,
		Revision:  revision,
		Summary:   summarize(clone),
		CreatedAt: time.Now().UTC(),
		Document:  clone.Clone(),
	})
	if len(m.history) > historyKeep {
		m.history = m.history[len(m.history)-historyKeep:]
	}
	return revision, nil
}

// History implements Historian, newest revision first.
func (m *Memory) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	entries := make([]HistoryEntry, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(entries) < n; i-- {
		entry := m.history[i]
		entry.Document = entry.Document.Clone()
		entries = append(entries, entry)
	}
	return entries, nil
}

// Snapshot implements Historian.
func (m *Memory) Snapshot(ctx context.Context, revision string) (*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Revision == revision {
			entry := m.history[i]
			entry.Document = entry.Document.Clone()
			return &entry, nil
		}
	}
	return nil, nil
}
