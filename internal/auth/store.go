package auth

import (
	"context"
	"encoding/json"
	"sync"
)

// SnapshotStore persists the engine state as one document. Load tolerates
// "no prior state" and malformed documents by returning an empty state;
// the in-memory engine is the source of truth and the snapshot is only
// consulted at process start.
type SnapshotStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}

// MemoryStore keeps the latest snapshot in memory. Used by tests and as a
// stand-in when durability is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot []byte
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshot) == 0 {
		return NewState(), nil
	}
	st := NewState()
	if err := json.Unmarshal(m.snapshot, st); err != nil {
		return NewState(), nil
	}
	st.normalize()
	return st, nil
}

func (m *MemoryStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.snapshot = data
	m.mu.Unlock()
	return nil
}

var _ SnapshotStore = (*MemoryStore)(nil)
