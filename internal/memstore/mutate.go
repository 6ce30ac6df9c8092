package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/kernpunkt/llm-mem/internal/apperr"
	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

// CreateInput carries the caller-supplied fields of a new memory.
type CreateInput struct {
	Title    string
	Body     string
	Category string
	Tags     []string
	Sources  []string
	Abstract string
	Custom   map[string]any
}

// Patch lists the fields an update may change. Nil means unchanged.
type Patch struct {
	Title        *string
	Category     *string
	Body         *string
	Abstract     *string
	Tags         []string
	Sources      []string
	Links        []string
	CreatedAt    *time.Time
	LastReviewed *time.Time
}

// UpdateResult describes what an update wrote.
type UpdateResult struct {
	Memory *models.Memory
	// PreviousPath is set when the memory moved.
	PreviousPath string
	// Propagated holds other memories whose bodies were rewritten because
	// this memory's title changed.
	Propagated []*models.Memory
}

// Renamed reports whether the update moved the file.
func (r *UpdateResult) Renamed() bool { return r.PreviousPath != "" }

// Create writes a new memory and returns it as read back from disk.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.Memory, error) {
	if bad := models.ProtectedCollisions(in.Custom); len(bad) > 0 {
		return nil, apperr.Invalid("custom fields cannot override protected fields", bad...)
	}
	var missing []string
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, models.FieldTitle)
	}
	if strings.TrimSpace(in.Category) == "" {
		missing = append(missing, models.FieldCategory)
	}
	if len(missing) > 0 {
		return nil, apperr.Invalid("missing required fields", missing...)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("memstore: generate id: %w", err)
	}
	now := s.timestamp()
	m := &models.Memory{
		ID:           id.String(),
		Title:        strings.TrimSpace(in.Title),
		Category:     strings.TrimSpace(in.Category),
		Body:         normalizeBody(in.Body),
		Tags:         uniqueStrings(in.Tags),
		Sources:      uniqueStrings(in.Sources),
		Abstract:     strings.TrimSpace(in.Abstract),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastReviewed: now,
		Links:        []string{},
		Custom:       maps.Clone(in.Custom),
	}
	m.Path = PathFor(m.Category, m.Title, m.ID)

	exists, err := s.files.Exists(m.Path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &apperr.StorageConflictError{Path: m.Path, ID: m.ID}
	}
	if err := s.write(m); err != nil {
		return nil, err
	}

	back, err := s.ReadPath(ctx, m.Path)
	if err == nil && !sameMemory(m, back) {
		err = fmt.Errorf("memstore: create %s: read-back does not match written memory", m.Path)
	}
	if err != nil {
		_ = s.files.Delete(m.Path)
		return nil, err
	}
	s.logger.Debug("memstore: created", slog.String("id", m.ID), slog.String("path", m.Path))
	return back, nil
}

// Update applies p and custom to the memory with the given id. A title or
// category change moves the file; a title change also rewrites markers in
// every memory that links to this one.
func (s *Store) Update(ctx context.Context, id string, p Patch, custom map[string]any) (*UpdateResult, error) {
	if bad := models.ProtectedCollisions(custom); len(bad) > 0 {
		return nil, apperr.Invalid("custom fields cannot override protected fields", bad...)
	}
	cur, err := s.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Category != nil {
		next.Category = strings.TrimSpace(*p.Category)
	}
	var missing []string
	if next.Title == "" {
		missing = append(missing, models.FieldTitle)
	}
	if next.Category == "" {
		missing = append(missing, models.FieldCategory)
	}
	if len(missing) > 0 {
		return nil, apperr.Invalid("fields cannot be empty", missing...)
	}
	if p.Body != nil {
		next.Body = normalizeBody(*p.Body)
	}
	if p.Abstract != nil {
		next.Abstract = strings.TrimSpace(*p.Abstract)
	}
	if p.Tags != nil {
		next.Tags = uniqueStrings(p.Tags)
	}
	if p.Sources != nil {
		next.Sources = uniqueStrings(p.Sources)
	}
	if p.Links != nil {
		next.Links = slices.DeleteFunc(uniqueStrings(p.Links), func(l string) bool { return l == next.ID })
	}
	if p.CreatedAt != nil {
		next.CreatedAt = p.CreatedAt.UTC()
	}
	if p.LastReviewed != nil {
		next.LastReviewed = p.LastReviewed.UTC()
	}
	for k, v := range custom {
		if next.Custom == nil {
			next.Custom = make(map[string]any, len(custom))
		}
		if v == nil {
			delete(next.Custom, k)
			continue
		}
		next.Custom[k] = v
	}
	next.UpdatedAt = s.timestamp()
	next.Path = PathFor(next.Category, next.Title, next.ID)

	res := &UpdateResult{Memory: next}
	if next.Path == cur.Path {
		if err := s.write(next); err != nil {
			return nil, err
		}
	} else {
		exists, err := s.files.Exists(next.Path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &apperr.StorageConflictError{Path: next.Path, ID: next.ID}
		}
		if err := s.write(next); err != nil {
			return nil, err
		}
		if err := s.files.Delete(cur.Path); err != nil {
			return nil, fmt.Errorf("memstore: remove old location %s: %w", cur.Path, err)
		}
		res.PreviousPath = cur.Path
		s.logger.Debug("memstore: moved", slog.String("id", next.ID), slog.String("from", cur.Path), slog.String("to", next.Path))
	}

	if next.Title != cur.Title {
		res.Propagated = s.propagateTitle(ctx, next.ID, cur.Title, next.Title)
	}
	return res, nil
}

// propagateTitle rewrites markers targeting oldTitle in every memory that
// lists id. Failures are logged and skipped.
func (s *Store) propagateTitle(ctx context.Context, id, oldTitle, newTitle string) []*models.Memory {
	var changed []*models.Memory
	for m, err := range s.ListAll(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Warn("memstore: propagate title: skip unreadable memory",
				slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		if m.ID == id || !m.HasLink(id) {
			continue
		}
		body := parser.RewriteWikilinks(m.Body, oldTitle, newTitle)
		if body == m.Body {
			continue
		}
		m.Body = body
		m.UpdatedAt = s.timestamp()
		if err := s.write(m); err != nil {
			s.logger.Warn("memstore: propagate title: write failed",
				slog.String("id", m.ID), slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		changed = append(changed, m)
	}
	return changed
}

// Delete removes the memory's file and returns what was deleted. Other
// memories referring to it are left untouched.
func (s *Store) Delete(ctx context.Context, id string) (*models.Memory, error) {
	cur, err := s.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.files.Delete(cur.Path); err != nil {
		return nil, err
	}
	s.logger.Debug("memstore: deleted", slog.String("id", cur.ID), slog.String("path", cur.Path))
	return cur, nil
}

func (s *Store) write(m *models.Memory) error {
	data, err := parser.Encode(m)
	if err != nil {
		return err
	}
	return s.files.Write(m.Path, data)
}

// sameMemory compares the fields a write must preserve. Custom values are
// compared by key only since YAML may change their Go types.
func sameMemory(want, got *models.Memory) bool {
	if !cmp.Equal(want, got, cmpopts.EquateEmpty(), cmpopts.IgnoreFields(models.Memory{}, "Custom")) {
		return false
	}
	return cmp.Equal(slices.Sorted(maps.Keys(want.Custom)), slices.Sorted(maps.Keys(got.Custom)), cmpopts.EquateEmpty())
}

// normalizeBody converts CRLF line endings, which the codec does not keep.
func normalizeBody(body string) string {
	return strings.ReplaceAll(body, "\r\n", "\n")
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
