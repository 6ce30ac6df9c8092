// Package graph maintains bidirectional relationships between memories in
// both representations: the structured links list and the inline markers
// under a body's Related section.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kernpunkt/llm-mem/internal/apperr"
	"github.com/kernpunkt/llm-mem/internal/memstore"
	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

// Store is the subset of memstore.Store the graph writes through.
type Store interface {
	ReadByID(ctx context.Context, id string) (*models.Memory, error)
	Update(ctx context.Context, id string, p memstore.Patch, custom map[string]any) (*memstore.UpdateResult, error)
}

// Manager links and unlinks memories.
type Manager struct {
	store Store
}

// New creates a Manager writing through store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Result holds both sides of a link operation as written.
type Result struct {
	Source *models.Memory `json:"source"`
	Target *models.Memory `json:"target"`
}

// Link relates source and target. Each id is added to the other's links
// and each body gets a fresh marker for the other's current title. display
// applies to the marker written into source. Linking twice is idempotent.
func (g *Manager) Link(ctx context.Context, sourceID, targetID, display string) (*Result, error) {
	if sourceID == targetID {
		return nil, apperr.Invalid("a memory cannot link to itself", "target_id")
	}
	src, tgt, err := g.load(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}

	srcBody := parser.AppendRelated(parser.RemoveWikilinks(src.Body, tgt.Title), parser.Marker(tgt.Title, display))
	srcLinks := addLink(src.Links, tgt.ID)
	tgtBody := parser.AppendRelated(parser.RemoveWikilinks(tgt.Body, src.Title), parser.Marker(src.Title, ""))
	tgtLinks := addLink(tgt.Links, src.ID)

	return g.write(ctx, src.ID, srcLinks, srcBody, tgt.ID, tgtLinks, tgtBody)
}

// Unlink removes the relationship in both directions. Markers are matched by
// the other side's current title; a marker still naming a previous title is
// left for the auditor to report.
func (g *Manager) Unlink(ctx context.Context, sourceID, targetID string) (*Result, error) {
	src, tgt, err := g.load(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}

	srcBody := parser.RemoveWikilinks(src.Body, tgt.Title)
	srcLinks := removeLink(src.Links, tgt.ID)
	tgtBody := parser.RemoveWikilinks(tgt.Body, src.Title)
	tgtLinks := removeLink(tgt.Links, src.ID)

	return g.write(ctx, src.ID, srcLinks, srcBody, tgt.ID, tgtLinks, tgtBody)
}

func (g *Manager) load(ctx context.Context, sourceID, targetID string) (*models.Memory, *models.Memory, error) {
	src, err := g.store.ReadByID(ctx, sourceID)
	if err != nil {
		return nil, nil, side(err, "source", sourceID)
	}
	tgt, err := g.store.ReadByID(ctx, targetID)
	if err != nil {
		return nil, nil, side(err, "target", targetID)
	}
	return src, tgt, nil
}

// write persists source then target. A failure on the target leaves the
// source written; the auditor reports the half-link.
func (g *Manager) write(ctx context.Context, srcID string, srcLinks []string, srcBody string, tgtID string, tgtLinks []string, tgtBody string) (*Result, error) {
	srcRes, err := g.store.Update(ctx, srcID, memstore.Patch{Links: srcLinks, Body: &srcBody}, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: write source %s: %w", srcID, err)
	}
	tgtRes, err := g.store.Update(ctx, tgtID, memstore.Patch{Links: tgtLinks, Body: &tgtBody}, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: write target %s: %w", tgtID, err)
	}
	return &Result{Source: srcRes.Memory, Target: tgtRes.Memory}, nil
}

func side(err error, which, id string) error {
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return &apperr.NotFoundError{Kind: "memory", Key: id, Side: which}
	}
	return err
}

func addLink(links []string, id string) []string {
	out := slices.Clone(links)
	if !slices.Contains(out, id) {
		out = append(out, id)
	}
	return out
}

func removeLink(links []string, id string) []string {
	out := slices.DeleteFunc(slices.Clone(links), func(l string) bool { return l == id })
	if out == nil {
		out = []string{}
	}
	return out
}
