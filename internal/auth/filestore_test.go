package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	st := NewState()
	st.EmailIndex["a@b.c"] = "u1"
	st.Users["u1"] = &User{ID: "u1", Email: "a@b.c", Name: "A"}
	if err := fs.Save(context.Background(), st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.EmailIndex["a@b.c"] != "u1" {
		t.Fatalf("index lost in round trip: %+v", loaded.EmailIndex)
	}
	if u, ok := loaded.Users["u1"]; !ok || u.Email != "a@b.c" {
		t.Fatalf("user lost in round trip: %+v", loaded.Users)
	}
}

func TestFileStoreAbsentFile(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Sessions) != 0 || st.Users == nil {
		t.Fatalf("absent file should give an empty initialized state")
	}
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("malformed snapshot must not be fatal: %v", err)
	}
	if len(st.Users) != 0 {
		t.Fatalf("malformed snapshot should give an empty state")
	}
}

func TestFileStoreLastWriterWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	first := NewState()
	first.EmailIndex["first@x.y"] = "u1"
	second := NewState()
	second.EmailIndex["second@x.y"] = "u2"

	if err := fs.Save(context.Background(), first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := fs.Save(context.Background(), second); err != nil {
		t.Fatalf("Save second: %v", err)
	}
	loaded, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded.EmailIndex["second@x.y"]; !ok {
		t.Fatalf("latest save should win: %+v", loaded.EmailIndex)
	}
	if _, ok := loaded.EmailIndex["first@x.y"]; ok {
		t.Fatalf("stale snapshot content survived: %+v", loaded.EmailIndex)
	}
}
