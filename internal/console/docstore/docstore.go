// Package docstore loads and persists the gateway configuration document.
//
// The document is a single versioned resource: every read carries an opaque
// revision token and every write names the revision it was derived from.
// Writes against a stale revision are rejected with ErrRevisionConflict so
// concurrent editors never silently overwrite each other.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// ErrRevisionConflict indicates a write was derived from a stale revision.
var ErrRevisionConflict = errors.New("document revision conflict")

// ErrNoHistory indicates the gateway does not retain revision history.
var ErrNoHistory = errors.New("document history not available")

// Gateway is the persistence boundary for the configuration document.
type Gateway interface {
	// Fetch returns the current document and its revision token. An empty
	// store yields a zero document and an empty revision.
	Fetch(ctx context.Context) (gatewaycfg.Document, string, error)
	// Persist stores a full replacement document. expectedRevision must
	// match the currently stored revision (empty for a first write) or the
	// call fails with ErrRevisionConflict. Returns the new revision.
	Persist(ctx context.Context, doc gatewaycfg.Document, expectedRevision string) (string, error)
}

// Historian is implemented by gateways that retain a revision history.
type Historian interface {
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
	Snapshot(ctx context.Context, revision string) (*HistoryEntry, error)
}

// HistoryEntry captures an historical document snapshot.
type HistoryEntry struct {
	ID        int64               `json:"id"`
	Revision  string              `json:"revision"`
	Summary   string              `json:"summary,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Document  gatewaycfg.Document `json:"document"`
}

// NewRevision mints a fresh revision token. Tokens are time-ordered UUIDs so
// history listings sort naturally even across stores.
func NewRevision() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate revision: %w", err)
	}
	return id.String(), nil
}

func summarize(doc gatewaycfg.Document) string {
	listeners := 0
	for _, bind := range doc.Binds {
		listeners += len(bind.Listeners)
	}
	return fmt.Sprintf("%d binds, %d listeners, %d backends, %d policies",
		len(doc.Binds), listeners, len(doc.Backends), len(doc.Policies))
}
