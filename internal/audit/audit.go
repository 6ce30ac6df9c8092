// Package audit walks the whole memory corpus and reports integrity
// findings and health metrics. It never writes.
package audit

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/gobwas/glob"

	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

// Source yields every memory; decode failures arrive as errors.
type Source interface {
	ListAll(ctx context.Context) iter.Seq2[*models.Memory, error]
}

// Options tune an audit pass.
type Options struct {
	// StaleAfterDays lists memories not reviewed for at least this many
	// days. Zero disables the stale list.
	StaleAfterDays int
	// ExcludeCategories are glob patterns; matching memories still resolve
	// links but are not themselves audited.
	ExcludeCategories []string
	Now               func() time.Time
}

// Auditor runs read-only passes over a Source.
type Auditor struct {
	src        Source
	staleAfter int
	exclude    []glob.Glob
	now        func() time.Time
}

// New creates an Auditor. It fails on an invalid exclusion pattern.
func New(src Source, opts Options) (*Auditor, error) {
	a := &Auditor{src: src, staleAfter: opts.StaleAfterDays, now: opts.Now}
	if a.now == nil {
		a.now = time.Now
	}
	for _, pattern := range opts.ExcludeCategories {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("audit: exclude pattern %q: %w", pattern, err)
		}
		a.exclude = append(a.exclude, g)
	}
	return a, nil
}

func (a *Auditor) excluded(category string) bool {
	for _, g := range a.exclude {
		if g.Match(category) {
			return true
		}
	}
	return false
}

// Run performs one pass.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	now := a.now().UTC()
	r := &Report{
		GeneratedAt:       now,
		ByCategory:        map[string]int{},
		ByTag:             map[string]int{},
		Orphans:           []Ref{},
		BrokenLinks:       []BrokenLink{},
		Unidirectional:    []LinkPair{},
		Mismatches:        []Mismatch{},
		InvalidReferences: []InvalidReference{},
		Unreadable:        []string{},
		DuplicateIDs:      []DuplicateID{},
		Review:            ReviewStats{StaleAfterDays: a.staleAfter, Stale: []StaleMemory{}},
	}

	var all []*models.Memory
	byID := map[string]*models.Memory{}
	paths := map[string][]string{}
	for m, err := range a.src.ListAll(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.Unreadable = append(r.Unreadable, err.Error())
			continue
		}
		paths[m.ID] = append(paths[m.ID], m.Path)
		if _, seen := byID[m.ID]; seen {
			continue
		}
		byID[m.ID] = m
		all = append(all, m)
	}
	for _, m := range all {
		if p := paths[m.ID]; len(p) > 1 {
			r.DuplicateIDs = append(r.DuplicateIDs, DuplicateID{ID: m.ID, Paths: p})
		}
	}

	var reviewDays float64
	var reviewed int
	for _, m := range all {
		if a.excluded(m.Category) {
			continue
		}
		r.TotalMemories++
		r.ByCategory[m.Category]++
		for _, tag := range m.Tags {
			r.ByTag[tag]++
		}
		r.TotalLinks += len(m.Links)
		if len(m.Sources) > 0 {
			r.WithSources++
		} else {
			r.WithoutSources++
		}
		if m.Abstract != "" {
			r.WithAbstract++
		} else {
			r.WithoutAbstract++
		}

		if len(m.Links) == 0 {
			r.Orphans = append(r.Orphans, refOf(m))
		}
		a.checkLinks(r, m, byID)

		for _, ref := range parser.FindInvalidReferences(m.Body) {
			r.InvalidReferences = append(r.InvalidReferences, InvalidReference{Memory: refOf(m), InvalidReference: ref})
		}

		reviewedAt := m.LastReviewed
		if reviewedAt.IsZero() {
			reviewedAt = m.CreatedAt
		}
		if reviewedAt.IsZero() {
			continue
		}
		age := now.Sub(reviewedAt)
		if age < 0 {
			age = 0
		}
		days := age.Hours() / 24
		reviewDays += days
		reviewed++
		if a.staleAfter > 0 && int(days) >= a.staleAfter {
			r.Review.Stale = append(r.Review.Stale, StaleMemory{Memory: refOf(m), DaysSinceReview: int(days)})
		}
	}

	if r.TotalMemories > 0 {
		r.AverageLinks = float64(r.TotalLinks) / float64(r.TotalMemories)
	}
	if reviewed > 0 {
		r.Review.AverageDaysSinceReview = reviewDays / float64(reviewed)
	}
	r.Recommendations = recommend(r)
	return r, nil
}

// checkLinks records broken, one-directional and mismatched links of m.
func (a *Auditor) checkLinks(r *Report, m *models.Memory, byID map[string]*models.Memory) {
	linkedSlugs := map[string]bool{}
	var missingInline []string

	wikilinks := parser.ExtractWikilinks(m.Body)
	markers := map[string]bool{}
	for _, w := range wikilinks {
		markers[parser.Slug(w.Target)] = true
	}

	for _, id := range m.Links {
		peer, ok := byID[id]
		if !ok {
			r.BrokenLinks = append(r.BrokenLinks, BrokenLink{Source: refOf(m), MissingID: id})
			continue
		}
		if !peer.HasLink(m.ID) {
			r.Unidirectional = append(r.Unidirectional, LinkPair{From: refOf(m), To: refOf(peer)})
		}
		s := parser.Slug(peer.Title)
		linkedSlugs[s] = true
		if !markers[s] {
			missingInline = append(missingInline, peer.Title)
		}
	}

	var missingStructured []string
	for _, w := range wikilinks {
		if !linkedSlugs[parser.Slug(w.Target)] {
			missingStructured = append(missingStructured, w.Target)
		}
	}

	if len(missingInline) > 0 || len(missingStructured) > 0 {
		slices.Sort(missingInline)
		slices.Sort(missingStructured)
		r.Mismatches = append(r.Mismatches, Mismatch{
			Memory:            refOf(m),
			MissingInline:     missingInline,
			MissingStructured: missingStructured,
		})
	}
}

func recommend(r *Report) []string {
	if r.TotalMemories == 0 && len(r.Unreadable) == 0 {
		return []string{"No memories found. Create memories to start building the knowledge base."}
	}
	var out []string
	add := func(n int, format string, args ...any) {
		if n > 0 {
			out = append(out, fmt.Sprintf(format, append([]any{n}, args...)...))
		}
	}
	add(len(r.Unreadable), "Fix %d memory files that cannot be parsed.")
	add(len(r.DuplicateIDs), "Remove stale copies of %d ids stored in more than one file.")
	add(len(r.BrokenLinks), "Remove or repair %d links to memories that no longer exist.")
	add(len(r.Unidirectional), "Add the reverse side of %d one-directional links.")
	add(len(r.Mismatches), "Reconcile structured links and [[markers]] in %d memories.")
	add(len(r.InvalidReferences), "Rewrite %d malformed references as [[Title]] markers.")
	add(len(r.Orphans), "Link %d orphaned memories to related memories.")
	add(r.WithoutSources, "Add sources to %d memories.")
	add(r.WithoutAbstract, "Add abstracts to %d memories.")
	add(len(r.Review.Stale), "Review %d memories not reviewed for %d days or more.", r.Review.StaleAfterDays)
	if len(out) == 0 {
		out = []string{"No issues found."}
	}
	return out
}
