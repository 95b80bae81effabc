package host

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ErrRevisionConflict indicates a replace carried a stale expected revision.
var ErrRevisionConflict = fmt.Errorf("document revision conflict")

// Store abstracts persistence of the single gateway configuration document.
// The payload is held as opaque JSON; interpreting it is the console's job.
type Store interface {
	// Load returns the stored payload and its revision. A host that has
	// never been written returns an empty payload and revision.
	Load(ctx context.Context) ([]byte, string, error)
	// Replace swaps the whole payload and mints a new revision. A non-empty
	// expectedRevision is compared against the current one first; on
	// mismatch the write is rejected with ErrRevisionConflict.
	Replace(ctx context.Context, payload []byte, expectedRevision string) (string, error)
}

func newRevision() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate revision: %w", err)
	}
	return id.String(), nil
}

func checkRevision(expected, current string) error {
	if expected != "" && expected != current {
		return fmt.Errorf("revision %q is stale (current %q): %w", expected, current, ErrRevisionConflict)
	}
	return nil
}
