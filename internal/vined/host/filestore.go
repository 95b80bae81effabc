package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// stateFile is the on-disk layout: the document payload together with the
// revision that produced it.
type stateFile struct {
	Revision  string          `json:"revision"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// FileStore persists the document to a JSON file on disk. Writes go through
// a temp file and rename so a crash never leaves a torn document. A lock
// file next to the state file keeps a second daemon off the same path.
type FileStore struct {
	path string
	lock *os.File

	mu    sync.RWMutex
	state stateFile
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads an existing document from path or creates a new empty
// store. The caller must Close the store to release the lock file.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("host: document path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("host: ensure directory: %w", err)
	}

	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, err
	}

	store := &FileStore{path: path, lock: lock}
	if err := store.load(); err != nil {
		releaseLock(lock)
		return nil, err
	}
	return store, nil
}

// Close releases the lock file.
func (f *FileStore) Close() error {
	if f.lock == nil {
		return nil
	}
	err := releaseLock(f.lock)
	f.lock = nil
	return err
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("host: read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("host: decode file: %w", err)
	}
	f.state = state
	return nil
}

// Load returns the stored payload and revision.
func (f *FileStore) Load(context.Context) ([]byte, string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state.Document == nil {
		return nil, "", nil
	}
	out := make([]byte, len(f.state.Document))
	copy(out, f.state.Document)
	return out, f.state.Revision, nil
}

// Replace swaps the payload on disk after the revision guard passes.
func (f *FileStore) Replace(_ context.Context, payload []byte, expectedRevision string) (string, error) {
	if !json.Valid(payload) {
		return "", fmt.Errorf("host: payload is not valid JSON")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkRevision(expectedRevision, f.state.Revision); err != nil {
		return "", err
	}
	revision, err := newRevision()
	if err != nil {
		return "", err
	}
	next := stateFile{
		Revision:  revision,
		UpdatedAt: time.Now().UTC(),
		Document:  append(json.RawMessage(nil), payload...),
	}
	if err := f.persistLocked(next); err != nil {
		return "", err
	}
	f.state = next
	return revision, nil
}

func (f *FileStore) persistLocked(state stateFile) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "document-*.json")
	if err != nil {
		return fmt.Errorf("host: create temp file: %w", err)
	}
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("host: encode file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("host: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("host: replace file: %w", err)
	}
	return nil
}
