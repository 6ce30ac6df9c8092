// Package memservice coordinates the memory store, the link graph, the
// auditor and the search index behind one API used by every transport.
package memservice

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/kernpunkt/llm-mem/internal/apperr"
	"github.com/kernpunkt/llm-mem/internal/audit"
	"github.com/kernpunkt/llm-mem/internal/graph"
	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/indexsync"
	"github.com/kernpunkt/llm-mem/internal/memstore"
	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

// Templates maps a category to the custom fields every new memory in it
// starts with.
type Templates map[string]map[string]any

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	Category string
	Tag      string
}

// Service runs store and graph operations and pushes every written or
// removed memory to the index.
type Service struct {
	store     *memstore.Store
	graph     *graph.Manager
	auditor   *audit.Auditor
	index     *indexsync.Handle
	templates Templates
	notify    indexsync.EventCallback
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTemplates sets category templates.
func WithTemplates(t Templates) Option {
	return func(s *Service) { s.templates = t }
}

// WithNotifier registers a callback invoked after every successful mutation.
func WithNotifier(cb indexsync.EventCallback) Option {
	return func(s *Service) { s.notify = cb }
}

// WithClock overrides the time source used for reviews.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. It fails when the audit options are invalid.
func New(store *memstore.Store, handle *indexsync.Handle, auditOpts audit.Options, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	auditor, err := audit.New(store, auditOpts)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:   store,
		graph:   graph.New(store),
		auditor: auditor,
		index:   handle,
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Create writes a new memory. Template fields for the category are merged
// under the caller's custom fields.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Memory, error) {
	custom := s.template(req.Category)
	maps.Copy(custom, req.Custom)
	bad := models.ProtectedCollisions(custom)
	if err := req.Validate(); err != nil || len(bad) > 0 {
		return nil, invalid(err, bad...)
	}
	if len(custom) == 0 {
		custom = nil
	}

	m, err := s.store.Create(ctx, memstore.CreateInput{
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		Tags:     req.Tags,
		Sources:  req.Sources,
		Abstract: req.Abstract,
		Custom:   custom,
	})
	if err != nil {
		return nil, err
	}
	s.push(ctx, indexsync.EventCreated, m)
	return m, nil
}

// Get returns the memory with id.
func (s *Service) Get(ctx context.Context, id string) (*models.Memory, error) {
	return s.store.ReadByID(ctx, id)
}

// GetByTitle returns the memory whose title matches title after slugging.
func (s *Service) GetByTitle(ctx context.Context, title string) (*models.Memory, error) {
	return s.store.ReadByTitle(ctx, title)
}

// Update patches a memory. Title or category changes move the file and
// rewrite markers in memories that link to it.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.Memory, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	res, err := s.store.Update(ctx, id, memstore.Patch{
		Title:    req.Title,
		Category: req.Category,
		Body:     req.Body,
		Abstract: req.Abstract,
		Tags:     req.Tags,
		Sources:  req.Sources,
	}, req.Custom)
	if err != nil {
		return nil, err
	}
	// One push: propagated peers were rewritten too and must not read as
	// newer than the index.
	s.push(ctx, indexsync.EventUpdated, append([]*models.Memory{res.Memory}, res.Propagated...)...)
	if res.Renamed() {
		s.logger.Info("memservice: memory moved",
			slog.String("id", id), slog.String("from", res.PreviousPath), slog.String("to", res.Memory.Path),
			slog.Int("propagated", len(res.Propagated)))
	}
	return res.Memory, nil
}

// Review marks a memory as reviewed now.
func (s *Service) Review(ctx context.Context, id string) (*models.Memory, error) {
	now := s.now().UTC()
	res, err := s.store.Update(ctx, id, memstore.Patch{LastReviewed: &now}, nil)
	if err != nil {
		return nil, err
	}
	s.push(ctx, indexsync.EventUpdated, res.Memory)
	return res.Memory, nil
}

// Delete removes a memory file. References to it in other memories stay
// until an audit reports them.
func (s *Service) Delete(ctx context.Context, id string) (*models.Memory, error) {
	m, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.index.Remove(ctx, m.ID); err != nil {
		s.logger.Warn("memservice: index remove failed", slog.String("id", m.ID), slog.String("error", err.Error()))
	}
	s.emit(indexsync.EventDeleted, m)
	return m, nil
}

// List returns every readable memory matching f, in path order.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Memory, error) {
	category := parser.Slug(f.Category)
	out := []*models.Memory{}
	for m, err := range s.store.ListAll(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("memservice: list skip unreadable memory", slog.String("error", err.Error()))
			continue
		}
		if category != "" && parser.Slug(m.Category) != category {
			continue
		}
		if f.Tag != "" && !slices.Contains(m.Tags, f.Tag) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Search queries the index.
func (s *Service) Search(ctx context.Context, query string, opts index.SearchOptions) ([]index.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Invalid("search query is required", "query")
	}
	return s.index.Search(ctx, query, opts)
}

// Link relates two memories in both representations.
func (s *Service) Link(ctx context.Context, sourceID, targetID, display string) (*graph.Result, error) {
	res, err := s.graph.Link(ctx, sourceID, targetID, display)
	if err != nil {
		return nil, err
	}
	s.push(ctx, indexsync.EventUpdated, res.Source, res.Target)
	return res, nil
}

// Unlink removes the relationship between two memories.
func (s *Service) Unlink(ctx context.Context, sourceID, targetID string) (*graph.Result, error) {
	res, err := s.graph.Unlink(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	s.push(ctx, indexsync.EventUpdated, res.Source, res.Target)
	return res, nil
}

// Backlinks returns the ids of memories whose links list id.
func (s *Service) Backlinks(ctx context.Context, id string) ([]string, error) {
	if _, err := s.store.ReadByID(ctx, id); err != nil {
		return nil, err
	}
	return s.index.Backlinks(ctx, id)
}

// Graph returns indexed memories and their structured links.
func (s *Service) Graph(ctx context.Context) ([]index.GraphNode, []index.GraphEdge, error) {
	return s.index.Graph(ctx)
}

// Audit runs one read-only consistency pass over the store.
func (s *Service) Audit(ctx context.Context) (*audit.Report, error) {
	return s.auditor.Run(ctx)
}

// Reindex rebuilds the index from the store and returns how many memories
// it holds.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	n, err := s.index.Rebuild(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("memservice: reindexed", slog.Int("memories", n))
	return n, nil
}

// template returns a copy of the template for category, matched by slug.
func (s *Service) template(category string) map[string]any {
	out := map[string]any{}
	want := parser.Slug(category)
	if want == "" {
		return out
	}
	for name, fields := range s.templates {
		if parser.Slug(name) == want {
			maps.Copy(out, fields)
			break
		}
	}
	return out
}

// push indexes written memories. A failure is logged and never undoes the
// file write.
func (s *Service) push(ctx context.Context, kind string, ms ...*models.Memory) {
	if len(ms) == 0 {
		return
	}
	if err := s.index.Index(ctx, ms...); err != nil {
		s.logger.Warn("memservice: index push failed", slog.Int("memories", len(ms)), slog.String("error", err.Error()))
	}
	for _, m := range ms {
		s.emit(kind, m)
	}
}

func (s *Service) emit(kind string, m *models.Memory) {
	if s.notify != nil {
		s.notify(kind, m.ID, m.Path)
	}
}
