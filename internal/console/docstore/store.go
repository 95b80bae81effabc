package docstore

import (
	"context"
	"fmt"

	"github.com/trellisgw/trellis/internal/console/db"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// historyKeep caps the revision history retained per document.
const historyKeep = 50

// Store persists the document through a db.Store with an append-only
// revision history.
type Store struct {
	store db.Store
}

var (
	_ Gateway   = (*Store)(nil)
	_ Historian = (*Store)(nil)
)

// NewStore wraps a database store.
func NewStore(store db.Store) *Store {
	return &Store{store: store}
}

// Fetch implements Gateway.
func (s *Store) Fetch(ctx context.Context) (gatewaycfg.Document, string, error) {
	rec, err := s.store.Queries().Documents().Get(ctx)
	if err != nil {
		return gatewaycfg.Document{}, "", fmt.Errorf("load document: %w", err)
	}
	if rec == nil {
		return gatewaycfg.Document{}, "", nil
	}
	doc, err := gatewaycfg.Unmarshal(rec.Payload)
	if err != nil {
		return gatewaycfg.Document{}, "", fmt.Errorf("decode document: %w", err)
	}
	return doc, rec.Revision, nil
}

// Persist implements Gateway. The stale check, document write, history
// append, and retention prune run in one transaction.
func (s *Store) Persist(ctx context.Context, doc gatewaycfg.Document, expectedRevision string) (string, error) {
	payload, err := gatewaycfg.Marshal(doc)
	if err != nil {
		return "", err
	}
	revision, err := NewRevision()
	if err != nil {
		return "", err
	}
	summary := summarize(doc)
	err = s.store.WithTx(ctx, func(q db.Queries) error {
		current, err := q.Documents().Get(ctx)
		if err != nil {
			return fmt.Errorf("load current document: %w", err)
		}
		currentRevision := ""
		if current != nil {
			currentRevision = current.Revision
		}
		if expectedRevision != currentRevision {
			return fmt.Errorf("revision %q is stale (current %q): %w", expectedRevision, currentRevision, ErrRevisionConflict)
		}
		if err := q.Documents().Put(ctx, db.DocumentRecord{Payload: payload, Revision: revision}); err != nil {
			return fmt.Errorf("store document: %w", err)
		}
		if _, err := q.Revisions().Append(ctx, db.RevisionRecord{Revision: revision, Payload: payload, Summary: summary}); err != nil {
			return fmt.Errorf("record revision: %w", err)
		}
		if _, err := q.Revisions().Prune(ctx, historyKeep); err != nil {
			return fmt.Errorf("prune revisions: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return revision, nil
}

// History implements Historian, newest revision first.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	records, err := s.store.Queries().Revisions().List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entry, err := historyFromRecord(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Snapshot implements Historian. Returns nil when the revision is unknown.
func (s *Store) Snapshot(ctx context.Context, revision string) (*HistoryEntry, error) {
	rec, err := s.store.Queries().Revisions().Get(ctx, revision)
	if err != nil {
		return nil, fmt.Errorf("load revision: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	entry, err := historyFromRecord(*rec)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func historyFromRecord(rec db.RevisionRecord) (HistoryEntry, error) {
	doc, err := gatewaycfg.Unmarshal(rec.Payload)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("decode revision %s: %w", rec.Revision, err)
	}
	return HistoryEntry{
		ID:        rec.ID,
		Revision:  rec.Revision,
		Summary:   rec.Summary,
		CreatedAt: rec.CreatedAt,
		Document:  doc,
	}, nil
}
