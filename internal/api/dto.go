package api

import (
	"time"

	"github.com/kernpunkt/llm-mem/internal/audit"
	"github.com/kernpunkt/llm-mem/internal/graph"
	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/memservice"
	"github.com/kernpunkt/llm-mem/internal/models"
)

// CreateMemoryRequest is the request body for creating a memory.
type CreateMemoryRequest = memservice.CreateRequest

// UpdateMemoryRequest is the request body for patching a memory.
type UpdateMemoryRequest = memservice.UpdateRequest

// Memory is the full memory response type (aliased from the domain layer).
type Memory = models.Memory

// MemoryListItem is a lightweight item in a list response.
type MemoryListItem struct {
	ID        string    `json:"id" example:"0190b0e0-0000-7000-8000-000000000001" validate:"required"`
	Title     string    `json:"title" example:"Retry policy" validate:"required"`
	Category  string    `json:"category" example:"architecture" validate:"required"`
	Tags      []string  `json:"tags" validate:"required"`
	Path      string    `json:"path" example:"architecture/retry-policy-0190b0e0-0000-7000-8000-000000000001.md" validate:"required"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
}

func listItem(m *models.Memory) MemoryListItem {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return MemoryListItem{
		ID:        m.ID,
		Title:     m.Title,
		Category:  m.Category,
		Tags:      tags,
		Path:      m.Path,
		UpdatedAt: m.UpdatedAt,
	}
}

// MemoryListResponse wraps memory listings.
type MemoryListResponse struct {
	Memories []MemoryListItem `json:"memories" validate:"required"`
	Total    int              `json:"total" example:"42" validate:"required"`
}

// LinkRequest is the request body for linking two memories.
type LinkRequest struct {
	TargetID string `json:"target_id" validate:"required"`
	Display  string `json:"display,omitempty" example:"see also"`
}

// LinkResponse holds both memories as written by a link or unlink.
type LinkResponse = graph.Result

// BacklinksResponse lists memories whose links contain ID.
type BacklinksResponse struct {
	ID        string   `json:"id" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Edges []index.GraphEdge `json:"edges" validate:"required"`
}

// AuditResponse is the consistency report.
type AuditResponse = audit.Report

// ReindexResponse reports the size of the rebuilt index.
type ReindexResponse struct {
	Indexed int `json:"indexed" example:"42" validate:"required"`
}
