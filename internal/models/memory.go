// Package models defines the domain types for llm-mem.
package models

import (
	"slices"
	"time"
)

// Protected front-matter keys. Custom fields may never use these names.
const (
	FieldID           = "id"
	FieldTitle        = "title"
	FieldCategory     = "category"
	FieldTags         = "tags"
	FieldSources      = "sources"
	FieldAbstract     = "abstract"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"
	FieldLastReviewed = "last_reviewed"
	FieldLinks        = "links"
)

// ProtectedFields lists the schema keys in the order they are written to disk.
var ProtectedFields = []string{
	FieldID,
	FieldTitle,
	FieldCategory,
	FieldTags,
	FieldSources,
	FieldAbstract,
	FieldCreatedAt,
	FieldUpdatedAt,
	FieldLastReviewed,
	FieldLinks,
}

// IsProtected reports whether key is one of the fixed schema fields.
func IsProtected(key string) bool {
	return slices.Contains(ProtectedFields, key)
}

// ProtectedCollisions returns every key of custom that would overwrite a
// protected field, sorted.
func ProtectedCollisions(custom map[string]any) []string {
	var out []string
	for k := range custom {
		if IsProtected(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Memory is a single knowledge document stored as one Markdown file.
type Memory struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Category     string         `json:"category"`
	Body         string         `json:"body"`
	Tags         []string       `json:"tags"`
	Sources      []string       `json:"sources"`
	Abstract     string         `json:"abstract,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastReviewed time.Time      `json:"last_reviewed"`
	Links        []string       `json:"links"`
	Custom       map[string]any `json:"custom,omitempty"`

	// Path is the file location relative to the store root. It is derived
	// from (category, title, id) and never serialized into the file.
	Path string `json:"path"`
}

// HasLink reports whether id is in the structured link set.
func (m *Memory) HasLink(id string) bool {
	return slices.Contains(m.Links, id)
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = slices.Clone(m.Tags)
	c.Sources = slices.Clone(m.Sources)
	c.Links = slices.Clone(m.Links)
	if m.Custom != nil {
		c.Custom = make(map[string]any, len(m.Custom))
		for k, v := range m.Custom {
			c.Custom[k] = v
		}
	}
	return &c
}

// FileInfo is the lightweight listing entry returned by storage.
type FileInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
