package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreLoadEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select state from auth_snapshot").WillReturnError(sql.ErrNoRows)

	st, err := NewPGStore(db).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Users) != 0 || st.Sessions == nil {
		t.Fatalf("missing row should give an empty initialized state")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreLoadSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := NewState()
	st.EmailIndex["a@b.c"] = "u1"
	data, _ := json.Marshal(st)
	mock.ExpectQuery("select state from auth_snapshot").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(data))

	loaded, err := NewPGStore(db).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.EmailIndex["a@b.c"] != "u1" {
		t.Fatalf("snapshot content lost: %+v", loaded.EmailIndex)
	}
}

func TestPGStoreLoadMalformed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select state from auth_snapshot").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow([]byte("{broken")))

	loaded, err := NewPGStore(db).Load(context.Background())
	if err != nil {
		t.Fatalf("malformed row must not be fatal: %v", err)
	}
	if len(loaded.Users) != 0 {
		t.Fatalf("malformed row should give an empty state")
	}
}

func TestPGStoreSaveUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into auth_snapshot.*on conflict").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPGStore(db).Save(context.Background(), NewState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
