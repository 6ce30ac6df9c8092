package indexsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kernpunkt/llm-mem/internal/checksum"
	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

// State is the sync state of a Handle.
type State int

const (
	Uninitialized State = iota
	Synced
	// StaleBehind means a memory file is newer than the index.
	StaleBehind
	// StaleExternal means the index file changed, or vanished, without
	// this process writing it.
	StaleExternal
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Synced:
		return "synced"
	case StaleBehind:
		return "stale-behind"
	case StaleExternal:
		return "stale-external"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle is the single long-lived connection to one index. All methods are
// safe for concurrent use.
type Handle struct {
	mu     sync.Mutex
	key    Key
	src    Source
	open   Opener
	logger *slog.Logger

	idx   Index
	state State
	// baseline is the index file mtime recorded after this process last
	// wrote it.
	baseline time.Time
	// covered is the newest memory mtime seen by the last full rebuild.
	covered  time.Time
	rebuilds int
}

func newHandle(key Key, src Source, open Opener, logger *slog.Logger) *Handle {
	return &Handle{key: key, src: src, open: open, logger: logger}
}

// Key returns the store/index pair this handle serves.
func (h *Handle) Key() Key { return h.key }

// State returns the state observed by the last operation.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Rebuilds returns how many full rebuilds this handle has run, including
// the initial one.
func (h *Handle) Rebuilds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rebuilds
}

// Index pushes written memories to the index. pushing paths are ignored by
// the staleness check so a push never rebuilds because of its own files.
func (h *Handle) Index(ctx context.Context, ms ...*models.Memory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	paths := make([]string, 0, len(ms))
	for _, m := range ms {
		paths = append(paths, m.Path)
	}
	if err := h.ensure(ctx, paths...); err != nil {
		return err
	}
	var errs []error
	for _, m := range ms {
		errs = append(errs, h.idx.IndexDocument(ctx, documentOf(m, encodedSum(m))))
	}
	h.refreshBaseline()
	return errors.Join(errs...)
}

// IndexFile indexes a file changed outside the store API. It reports
// whether the index changed; unchanged checksums are skipped.
func (h *Handle) IndexFile(ctx context.Context, rel string, raw []byte) (*models.Memory, bool, error) {
	m, err := parser.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("indexsync: %s: %w", rel, err)
	}
	m.Path = rel
	sum := checksum.Sum(raw)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx, rel); err != nil {
		return nil, false, err
	}
	known, err := h.idx.Checksums(ctx)
	if err != nil {
		return nil, false, err
	}
	if e, ok := known[rel]; ok && e.ID == m.ID && e.Checksum == sum {
		return m, false, nil
	}
	if err := h.idx.IndexDocument(ctx, documentOf(m, sum)); err != nil {
		return nil, false, err
	}
	h.refreshBaseline()
	return m, true, nil
}

// Remove drops memories from the index by id.
func (h *Handle) Remove(ctx context.Context, ids ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		errs = append(errs, h.idx.RemoveDocument(ctx, id))
	}
	h.refreshBaseline()
	return errors.Join(errs...)
}

// RemovePath drops whatever memory the index holds for rel. It returns the
// removed id, or "" when rel was not indexed.
func (h *Handle) RemovePath(ctx context.Context, rel string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return "", err
	}
	known, err := h.idx.Checksums(ctx)
	if err != nil {
		return "", err
	}
	e, ok := known[rel]
	if !ok {
		return "", nil
	}
	if err := h.idx.RemoveDocument(ctx, e.ID); err != nil {
		return "", err
	}
	h.refreshBaseline()
	return e.ID, nil
}

// Search queries the index.
func (h *Handle) Search(ctx context.Context, query string, opts index.SearchOptions) ([]index.SearchResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return nil, err
	}
	return h.idx.Search(ctx, query, opts)
}

// Backlinks returns ids of memories whose structured links contain id.
func (h *Handle) Backlinks(ctx context.Context, id string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return nil, err
	}
	return h.idx.Backlinks(ctx, id)
}

// Graph returns the indexed link graph.
func (h *Handle) Graph(ctx context.Context) ([]index.GraphNode, []index.GraphEdge, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return nil, nil, err
	}
	return h.idx.Graph(ctx)
}

// Size returns the number of indexed memories.
func (h *Handle) Size(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return 0, err
	}
	return h.idx.Size(ctx)
}

// Rebuild reindexes every memory unconditionally and returns the count.
func (h *Handle) Rebuild(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rebuild(ctx, h.state)
}

// Change is one index entry touched by Reconcile.
type Change struct {
	Kind string
	ID   string
	Path string
}

// Reconcile compares file checksums with the index and repairs the
// difference without a full rebuild: vanished files are removed, new or
// changed files are indexed.
func (h *Handle) Reconcile(ctx context.Context) ([]Change, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensure(ctx); err != nil {
		return nil, err
	}
	files, err := h.src.Files()
	if err != nil {
		return nil, err
	}
	known, err := h.idx.Checksums(ctx)
	if err != nil {
		return nil, err
	}

	var changes []Change

	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Path] = struct{}{}
	}
	for p, e := range known {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := h.idx.RemoveDocument(ctx, e.ID); err != nil {
			h.logger.Warn("indexsync: reconcile remove failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		changes = append(changes, Change{Kind: EventDeleted, ID: e.ID, Path: p})
	}

	for _, f := range files {
		raw, err := h.src.ReadRaw(f.Path)
		if err != nil {
			continue
		}
		sum := checksum.Sum(raw)
		e, ok := known[f.Path]
		if ok && e.Checksum == sum {
			continue
		}
		m, err := parser.Decode(raw)
		if err != nil {
			h.logger.Warn("indexsync: reconcile skip unreadable", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		m.Path = f.Path
		if err := h.idx.IndexDocument(ctx, documentOf(m, sum)); err != nil {
			h.logger.Warn("indexsync: reconcile index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		kind := EventCreated
		if ok {
			kind = EventUpdated
		}
		changes = append(changes, Change{Kind: kind, ID: m.ID, Path: f.Path})
	}
	h.refreshBaseline()
	return changes, nil
}

// Close closes the index. The handle reopens it on the next operation.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.idx == nil {
		return nil
	}
	err := h.idx.Close()
	h.idx = nil
	h.state = Uninitialized
	return err
}

// ensure brings the index to Synced, rebuilding when it is missing or
// stale. Caller holds h.mu.
func (h *Handle) ensure(ctx context.Context, pushing ...string) error {
	if h.idx == nil {
		_, err := h.rebuild(ctx, Uninitialized)
		return err
	}
	state, err := h.detect(ctx, pushing)
	if err != nil {
		return err
	}
	h.state = state
	if state == Synced {
		return nil
	}
	h.logger.Info("indexsync: index stale, rebuilding",
		slog.String("index", h.key.IndexPath), slog.String("state", state.String()))
	_, err = h.rebuild(ctx, state)
	return err
}

func (h *Handle) detect(ctx context.Context, pushing []string) (State, error) {
	info, err := os.Stat(h.key.IndexPath)
	if errors.Is(err, fs.ErrNotExist) {
		return StaleExternal, nil
	}
	if err != nil {
		return Uninitialized, fmt.Errorf("indexsync: stat index: %w", err)
	}
	if !info.ModTime().Equal(h.baseline) {
		return StaleExternal, nil
	}
	newest, err := h.src.NewestModTime(ctx, pushing...)
	if err != nil {
		return Uninitialized, err
	}
	if newest.After(info.ModTime()) && newest.After(h.covered) {
		return StaleBehind, nil
	}
	return Synced, nil
}

// rebuild closes and reopens the index, then indexes every memory file.
// Caller holds h.mu.
func (h *Handle) rebuild(ctx context.Context, from State) (int, error) {
	if h.idx != nil {
		if err := h.idx.Close(); err != nil {
			h.logger.Warn("indexsync: close before rebuild", slog.String("error", err.Error()))
		}
		h.idx = nil
	}
	h.state = Uninitialized

	idx, err := h.openIndex()
	if err != nil {
		return 0, err
	}
	h.idx = idx

	newest, err := h.src.NewestModTime(ctx)
	if err != nil {
		return 0, err
	}
	if err := idx.Clear(ctx); err != nil {
		return 0, err
	}
	files, err := h.src.Files()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		raw, err := h.src.ReadRaw(f.Path)
		if err != nil {
			h.logger.Warn("indexsync: rebuild read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		m, err := parser.Decode(raw)
		if err != nil {
			h.logger.Warn("indexsync: rebuild skip unreadable", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		m.Path = f.Path
		if err := idx.IndexDocument(ctx, documentOf(m, checksum.Sum(raw))); err != nil {
			return n, err
		}
		n++
	}

	h.rebuilds++
	h.covered = newest
	h.refreshBaseline()
	h.state = Synced
	h.logger.Info("indexsync: rebuilt",
		slog.String("index", h.key.IndexPath), slog.String("from", from.String()), slog.Int("memories", n))
	return n, nil
}

// openIndex opens the index file, recreating it once if it cannot be
// opened as an index.
func (h *Handle) openIndex() (Index, error) {
	if err := os.MkdirAll(filepath.Dir(h.key.IndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("indexsync: create index dir: %w", err)
	}
	idx, err := h.open(h.key.IndexPath)
	if err == nil {
		return idx, nil
	}
	h.logger.Warn("indexsync: index unreadable, recreating",
		slog.String("index", h.key.IndexPath), slog.String("error", err.Error()))
	if rmErr := os.Remove(h.key.IndexPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return nil, errors.Join(err, rmErr)
	}
	return h.open(h.key.IndexPath)
}

func (h *Handle) refreshBaseline() {
	info, err := os.Stat(h.key.IndexPath)
	if err != nil {
		h.baseline = time.Time{}
		return
	}
	h.baseline = info.ModTime()
}

func documentOf(m *models.Memory, sum string) index.Document {
	return index.Document{
		ID:        m.ID,
		Path:      m.Path,
		Title:     m.Title,
		Category:  m.Category,
		Tags:      m.Tags,
		Abstract:  m.Abstract,
		Body:      m.Body,
		Links:     m.Links,
		Checksum:  sum,
		UpdatedAt: m.UpdatedAt,
	}
}

// encodedSum is the checksum of m as the store writes it. It matches the
// file checksum for any memory written through the store.
func encodedSum(m *models.Memory) string {
	data, err := parser.Encode(m)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}
