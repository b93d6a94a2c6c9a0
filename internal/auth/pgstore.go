package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"signet.dev/internal/obs"
)

var _ SnapshotStore = (*PGStore)(nil)

// PGStore persists the snapshot as a single JSON row in PostgreSQL. The
// table holds exactly one row, keyed by a fixed id, upserted on every
// save. Same last-writer-wins semantics as the file store.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle. The caller owns the handle's
// lifecycle; the snapshot table comes from the migrations.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenPG opens a pgx-backed database/sql handle and verifies connectivity.
func OpenPG(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return db, nil
}

func (s *PGStore) Load(ctx context.Context) (*State, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`select state from auth_snapshot where id = 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load snapshot: %w", err)
	}
	st := NewState()
	if err := json.Unmarshal(data, st); err != nil {
		obs.Logger().WithError(err).
			Warn("snapshot row is malformed, starting from empty state")
		return NewState(), nil
	}
	st.normalize()
	return st, nil
}

func (s *PGStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("pgstore: encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into auth_snapshot(id, state, updated_at) values(1, $1, now())
		 on conflict (id) do update set state = excluded.state, updated_at = now()`,
		data,
	)
	if err != nil {
		return fmt.Errorf("pgstore: save snapshot: %w", err)
	}
	return nil
}
