package index

import "time"

// Document is the indexed projection of one memory.
type Document struct {
	ID        string
	Path      string
	Title     string
	Category  string
	Tags      []string
	Abstract  string
	Body      string
	Links     []string
	Checksum  string
	UpdatedAt time.Time
}

// SearchOptions narrow a search. Zero values mean no filter; Tags must all
// be present on a hit.
type SearchOptions struct {
	Limit    int
	Category string
	Tags     []string
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

// Indexed is what the index remembers about a file for reconciliation.
type Indexed struct {
	ID       string
	Checksum string
}

// GraphNode is a memory in the structured link graph.
type GraphNode struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// GraphEdge is one structured link.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

const defaultLimit = 20
