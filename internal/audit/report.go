package audit

import (
	"time"

	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

// Ref identifies a memory in findings.
type Ref struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

func refOf(m *models.Memory) Ref {
	return Ref{ID: m.ID, Title: m.Title, Path: m.Path}
}

// BrokenLink is a structured link to an id no memory carries.
type BrokenLink struct {
	Source    Ref    `json:"source"`
	MissingID string `json:"missing_id"`
}

// LinkPair is a structured link From -> To without To -> From.
type LinkPair struct {
	From Ref `json:"from"`
	To   Ref `json:"to"`
}

// Mismatch lists where a memory's two link representations disagree.
type Mismatch struct {
	Memory Ref `json:"memory"`
	// MissingInline holds titles of linked memories with no marker in the body.
	MissingInline []string `json:"missing_inline,omitempty"`
	// MissingStructured holds marker targets matching no linked memory.
	MissingStructured []string `json:"missing_structured,omitempty"`
}

// InvalidReference is a malformed cross-reference found in a body.
type InvalidReference struct {
	Memory Ref `json:"memory"`
	parser.InvalidReference
}

// StaleMemory is a memory whose last review is older than the cutoff.
type StaleMemory struct {
	Memory          Ref `json:"memory"`
	DaysSinceReview int `json:"days_since_review"`
}

// ReviewStats summarises review freshness.
type ReviewStats struct {
	AverageDaysSinceReview float64       `json:"average_days_since_review"`
	StaleAfterDays         int           `json:"stale_after_days"`
	Stale                  []StaleMemory `json:"stale"`
}

// DuplicateID is an id carried by more than one file, typically left by a
// rename interrupted between writing the new file and deleting the old one.
type DuplicateID struct {
	ID    string   `json:"id"`
	Paths []string `json:"paths"`
}

// Report is the result of one audit pass. It is descriptive only.
type Report struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	TotalMemories int            `json:"total_memories"`
	ByCategory    map[string]int `json:"by_category"`
	ByTag         map[string]int `json:"by_tag"`

	TotalLinks   int     `json:"total_links"`
	AverageLinks float64 `json:"average_links"`

	WithSources     int `json:"with_sources"`
	WithoutSources  int `json:"without_sources"`
	WithAbstract    int `json:"with_abstract"`
	WithoutAbstract int `json:"without_abstract"`

	Orphans           []Ref              `json:"orphans"`
	BrokenLinks       []BrokenLink       `json:"broken_links"`
	Unidirectional    []LinkPair         `json:"unidirectional_links"`
	Mismatches        []Mismatch         `json:"link_mismatches"`
	InvalidReferences []InvalidReference `json:"invalid_references"`
	Review            ReviewStats        `json:"review"`
	Unreadable        []string           `json:"unreadable_files"`
	DuplicateIDs      []DuplicateID      `json:"duplicate_ids"`

	Recommendations []string `json:"recommendations"`
}

// Healthy reports whether the pass found no integrity violations.
func (r *Report) Healthy() bool {
	return len(r.Orphans) == 0 &&
		len(r.BrokenLinks) == 0 &&
		len(r.Unidirectional) == 0 &&
		len(r.Mismatches) == 0 &&
		len(r.InvalidReferences) == 0 &&
		len(r.Unreadable) == 0 &&
		len(r.DuplicateIDs) == 0
}
