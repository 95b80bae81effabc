package db

import (
	"context"
	"time"
)

// DocumentRecord is the stored configuration document: the canonical JSON
// payload plus the opaque revision token stamped at the last write. The
// console keeps exactly one document.
type DocumentRecord struct {
	Payload   []byte
	Revision  string
	UpdatedAt time.Time
}

// RevisionRecord is one entry of the document's revision history, holding a
// full snapshot of the payload as it was at that revision.
type RevisionRecord struct {
	ID        int64
	Revision  string
	Payload   []byte
	Summary   string
	CreatedAt time.Time
}

// Store describes the persistence surface consumed by the console.
type Store interface {
	Close(ctx context.Context) error
	Queries() Queries
	WithTx(ctx context.Context, fn func(Queries) error) error
}

// Queries exposes repository accessors bound to a specific connection scope
// (either the root connection or a transaction).
type Queries interface {
	Documents() DocumentRepository
	Revisions() RevisionRepository
}

// DocumentRepository manages the single stored document.
type DocumentRepository interface {
	// Get returns the stored document, or nil when none has been written yet.
	Get(ctx context.Context) (*DocumentRecord, error)
	// Put stores the document, replacing any previous row.
	Put(ctx context.Context, rec DocumentRecord) error
}

// RevisionRepository manages the append-only revision history.
type RevisionRepository interface {
	Append(ctx context.Context, rec RevisionRecord) (int64, error)
	// List returns the newest entries first, at most limit of them.
	List(ctx context.Context, limit int) ([]RevisionRecord, error)
	// Get returns the entry for a revision token, or nil when unknown.
	Get(ctx context.Context, revision string) (*RevisionRecord, error)
	// Prune removes all but the newest keep entries and reports how many
	// rows were deleted.
	Prune(ctx context.Context, keep int) (int64, error)
}
