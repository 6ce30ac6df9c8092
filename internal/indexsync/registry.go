// Package indexsync keeps the derived search index in step with the memory
// files. A Registry hands out one Handle per (store, index) pair; the
// Handle detects a stale index from file modification times and rebuilds
// it from the store.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/models"
)

// Index is the indexing service a Handle drives.
type Index interface {
	Initialize(ctx context.Context) error
	IndexDocument(ctx context.Context, d index.Document) error
	RemoveDocument(ctx context.Context, id string) error
	Search(ctx context.Context, query string, opts index.SearchOptions) ([]index.SearchResult, error)
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	Destroy() error
	Close() error
	Backlinks(ctx context.Context, id string) ([]string, error)
	Checksums(ctx context.Context) (map[string]index.Indexed, error)
	Graph(ctx context.Context) ([]index.GraphNode, []index.GraphEdge, error)
	Path() string
}

var _ Index = (*index.DB)(nil)

// Opener opens or creates the index stored at path.
type Opener func(path string) (Index, error)

// OpenSQLite is the Opener for the SQLite index.
func OpenSQLite(path string) (Index, error) {
	db, err := index.Open(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Source is the memory store a Handle indexes from.
type Source interface {
	Root() string
	Files() ([]models.FileInfo, error)
	ReadRaw(rel string) ([]byte, error)
	NewestModTime(ctx context.Context, exclude ...string) (time.Time, error)
}

// Key identifies one store/index pair by absolute paths.
type Key struct {
	StorePath string
	IndexPath string
}

// Registry owns at most one Handle per Key.
type Registry struct {
	mu      sync.Mutex
	open    Opener
	logger  *slog.Logger
	handles map[Key]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry(open Opener, logger *slog.Logger) *Registry {
	if open == nil {
		open = OpenSQLite
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{open: open, logger: logger, handles: make(map[Key]*Handle)}
}

// Acquire returns the shared Handle for src and indexPath, creating it on
// first use. The index itself is opened lazily by the first operation.
func (r *Registry) Acquire(src Source, indexPath string) (*Handle, error) {
	storeAbs, err := filepath.Abs(src.Root())
	if err != nil {
		return nil, fmt.Errorf("indexsync: resolve store path: %w", err)
	}
	indexAbs, err := filepath.Abs(indexPath)
	if err != nil {
		return nil, fmt.Errorf("indexsync: resolve index path: %w", err)
	}
	key := Key{StorePath: storeAbs, IndexPath: indexAbs}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[key]; ok {
		return h, nil
	}
	h := newHandle(key, src, r.open, r.logger)
	r.handles[key] = h
	return h, nil
}

// Close closes every handle and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for k, h := range r.handles {
		errs = append(errs, h.Close())
		delete(r.handles, k)
	}
	return errors.Join(errs...)
}
