package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"signet.dev/internal/obs"
)

// FileStore keeps the snapshot as one JSON document on disk, written via
// temp-file-then-rename so a crash mid-write never leaves a torn file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed snapshot store at path. The parent
// directory is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("filestore: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("filestore: create dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the snapshot. An absent or malformed file yields an empty
// state; only the malformed case is logged.
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("filestore: read snapshot: %w", err)
	}
	st := NewState()
	if err := json.Unmarshal(data, st); err != nil {
		obs.Logger().WithError(err).WithField("path", f.path).
			Warn("snapshot file is malformed, starting from empty state")
		return NewState(), nil
	}
	st.normalize()
	return st, nil
}

// Save writes the full state to a temporary file in the same directory
// and renames it into place. Concurrent saves race on the rename; the
// last rename to complete wins, which is fine because the in-memory
// engine is the source of truth.
func (f *FileStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("filestore: encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}

var _ SnapshotStore = (*FileStore)(nil)
