package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/memservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *memservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *memservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListMemories handles GET /api/memories.
//
//	@Summary		List memories with optional filtering
//	@Tags			memories
//	@Produce		json
//	@Param			category	query		string	false	"Filter by category"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Success		200			{object}	MemoryListResponse
//	@Security		BearerAuth
//	@Router			/memories [get]
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ms, err := h.svc.List(r.Context(), memservice.ListFilter{Category: q.Get("category"), Tag: q.Get("tag")})
	if err != nil {
		writeError(w, "list memories", err)
		return
	}
	items := make([]MemoryListItem, 0, len(ms))
	for _, m := range ms {
		items = append(items, listItem(m))
	}
	writeJSON(w, http.StatusOK, MemoryListResponse{Memories: items, Total: len(items)})
}

// GetMemory handles GET /api/memories/{id}.
//
//	@Summary		Get a single memory by id
//	@Tags			memories
//	@Produce		json
//	@Param			id	path		string	true	"Memory id"
//	@Success		200	{object}	Memory
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id} [get]
func (h *Handler) GetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get memory", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// LookupMemory handles GET /api/memories/lookup.
//
//	@Summary		Find a memory by title
//	@Tags			memories
//	@Produce		json
//	@Param			title	query		string	true	"Title, compared after slugging"
//	@Success		200		{object}	Memory
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/lookup [get]
func (h *Handler) LookupMemory(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if strings.TrimSpace(title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'title' is required"))
		return
	}
	m, err := h.svc.GetByTitle(r.Context(), title)
	if err != nil {
		writeError(w, "lookup memory", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMemory handles POST /api/memories.
//
//	@Summary		Create a new memory
//	@Tags			memories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateMemoryRequest	true	"Memory to create"
//	@Success		201		{object}	Memory
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories [post]
func (h *Handler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, "create memory", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMemory handles PATCH /api/memories/{id}.
//
//	@Summary		Patch a memory; title or category changes move its file
//	@Tags			memories
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Memory id"
//	@Param			body	body		UpdateMemoryRequest	true	"Fields to change"
//	@Success		200		{object}	Memory
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id} [patch]
func (h *Handler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update memory", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMemory handles DELETE /api/memories/{id}.
//
//	@Summary		Delete a memory
//	@Tags			memories
//	@Param			id	path	string	true	"Memory id"
//	@Success		204	"Memory deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id} [delete]
func (h *Handler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete memory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReviewMemory handles POST /api/memories/{id}/review.
//
//	@Summary		Mark a memory as reviewed now
//	@Tags			memories
//	@Produce		json
//	@Param			id	path		string	true	"Memory id"
//	@Success		200	{object}	Memory
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id}/review [post]
func (h *Handler) ReviewMemory(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Review(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "review memory", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Link handles POST /api/memories/{id}/links.
//
//	@Summary		Link two memories in both directions
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Source memory id"
//	@Param			body	body		LinkRequest	true	"Target and display text"
//	@Success		200		{object}	LinkResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id}/links [post]
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetID) == "" {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "target_id is required", Fields: []string{"target_id"}})
		return
	}
	res, err := h.svc.Link(r.Context(), chi.URLParam(r, "id"), req.TargetID, req.Display)
	if err != nil {
		writeError(w, "link memories", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Unlink handles DELETE /api/memories/{id}/links/{targetID}.
//
//	@Summary		Remove the link between two memories
//	@Tags			links
//	@Produce		json
//	@Param			id			path		string	true	"Source memory id"
//	@Param			targetID	path		string	true	"Target memory id"
//	@Success		200			{object}	LinkResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id}/links/{targetID} [delete]
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Unlink(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "targetID"))
	if err != nil {
		writeError(w, "unlink memories", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Backlinks handles GET /api/memories/{id}/backlinks.
//
//	@Summary		List memories linking to a memory
//	@Tags			links
//	@Produce		json
//	@Param			id	path		string	true	"Memory id"
//	@Success		200	{object}	BacklinksResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memories/{id}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ids, err := h.svc.Backlinks(r.Context(), id)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{ID: id, Backlinks: ids})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across memories
//	@Tags			search
//	@Produce		json
//	@Param			q			query		string		true	"Search query"
//	@Param			limit		query		int			false	"Max results"
//	@Param			category	query		string		false	"Filter by category"
//	@Param			tag			query		[]string	false	"Filter by tag; repeat for all of several"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "query parameter 'q' is required", Fields: []string{"q"}})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	results, err := h.svc.Search(r.Context(), query, index.SearchOptions{
		Limit:    limit,
		Category: q.Get("category"),
		Tags:     q["tag"],
	})
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the structured link graph
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Edges: edges})
}

// Audit handles GET /api/audit.
//
//	@Summary		Run a read-only consistency audit
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	AuditResponse
//	@Security		BearerAuth
//	@Router			/audit [get]
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Audit(r.Context())
	if err != nil {
		writeError(w, "audit", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Reindex handles POST /api/reindex.
//
//	@Summary		Rebuild the search index from the memory files
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	ReindexResponse
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Reindex(r.Context())
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, ReindexResponse{Indexed: n})
}
