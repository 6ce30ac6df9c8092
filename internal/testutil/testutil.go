// Package testutil provides shared test helpers for setting up stores and indexes.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/memstore"
	"github.com/kernpunkt/llm-mem/internal/storage"
)

// TestDB creates a temporary SQLite index that is closed on cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a memory store in a temporary directory and returns the
// directory with it.
func TestStore(t *testing.T, opts ...memstore.Option) (string, *memstore.Store) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, memstore.New(files, Logger(), opts...)
}

// IndexPath returns a fresh index location outside any store directory.
func IndexPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "idx", "index.db")
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
