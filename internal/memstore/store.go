// Package memstore implements CRUD over memory files keyed by id. A
// memory's location is derived from its category, title and id, so title
// and category changes move the file.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/kernpunkt/llm-mem/internal/apperr"
	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
	"github.com/kernpunkt/llm-mem/internal/storage"
)

// Store reads and writes memories through a storage.Provider.
type Store struct {
	files  storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over files.
func New(files storage.Provider, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{files: files, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Root returns the absolute store directory.
func (s *Store) Root() string { return s.files.Root() }

// PathFor derives the relative file path of a memory.
func PathFor(category, title, id string) string {
	dir := parser.Slug(category)
	if dir == "" {
		dir = "uncategorized"
	}
	name := parser.Slug(title)
	if name == "" {
		name = "memory"
	}
	return path.Join(dir, name+"-"+id+".md")
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// ReadRaw returns the undecoded bytes of the file at rel.
func (s *Store) ReadRaw(rel string) ([]byte, error) {
	return s.files.Read(rel)
}

// ReadPath decodes the memory stored at the relative path rel.
func (s *Store) ReadPath(_ context.Context, rel string) (*models.Memory, error) {
	data, err := s.files.Read(rel)
	if err != nil {
		return nil, err
	}
	m, err := parser.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("memstore: %s: %w", rel, err)
	}
	m.Path = rel
	return m, nil
}

// ReadByID returns the memory with the given id. Files named after the id
// are tried first; a full scan covers files renamed by hand.
func (s *Store) ReadByID(ctx context.Context, id string) (*models.Memory, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound(id)
	}
	files, err := s.list()
	if err != nil {
		return nil, err
	}

	suffix := "-" + id + ".md"
	var rest []models.FileInfo
	for _, f := range files {
		if !strings.HasSuffix(f.Path, suffix) {
			rest = append(rest, f)
			continue
		}
		m, err := s.ReadPath(ctx, f.Path)
		if err == nil && m.ID == id {
			return m, nil
		}
	}

	for _, f := range rest {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := s.ReadPath(ctx, f.Path)
		if err == nil && m.ID == id {
			return m, nil
		}
	}
	return nil, apperr.NotFound(id)
}

// ReadByTitle returns the first memory whose title slug equals the slug of
// title.
func (s *Store) ReadByTitle(ctx context.Context, title string) (*models.Memory, error) {
	want := parser.Slug(title)
	if want == "" {
		return nil, &apperr.NotFoundError{Kind: "memory with title", Key: title}
	}
	for m, err := range s.ListAll(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if parser.Slug(m.Title) == want {
			return m, nil
		}
	}
	return nil, &apperr.NotFoundError{Kind: "memory with title", Key: title}
}

// ListAll yields every memory in path order. The directory is rescanned on
// each call. Files that fail to decode are yielded as errors naming the
// path; iteration continues after them unless the consumer stops.
func (s *Store) ListAll(ctx context.Context) iter.Seq2[*models.Memory, error] {
	return func(yield func(*models.Memory, error) bool) {
		files, err := s.list()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			m, err := s.ReadPath(ctx, f.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Files returns the listing of every memory file, sorted by path.
func (s *Store) Files() ([]models.FileInfo, error) {
	return s.list()
}

// NewestModTime returns the latest file mtime in the store, ignoring the
// given relative paths. It returns the zero time for an empty store.
func (s *Store) NewestModTime(_ context.Context, exclude ...string) (time.Time, error) {
	files, err := s.list()
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, f := range files {
		if slices.Contains(exclude, f.Path) {
			continue
		}
		if f.ModTime.After(newest) {
			newest = f.ModTime
		}
	}
	return newest, nil
}

func (s *Store) list() ([]models.FileInfo, error) {
	files, err := s.files.List("")
	if err != nil {
		return nil, fmt.Errorf("memstore: list: %w", err)
	}
	slices.SortFunc(files, func(a, b models.FileInfo) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}
