// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes llm-mem tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/memservice"
	"github.com/kernpunkt/llm-mem/internal/models"
)

const formatURI = "llm-mem://memory-format"

// Server wraps the MCP server with llm-mem tools.
type Server struct {
	mcp *server.MCPServer
	svc *memservice.Service
}

// New creates a new MCP server with all memory tools registered.
func New(svc *memservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"llm-mem",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_memory",
		mcp.WithDescription("Create a memory. The file location is derived from category and title; "+
			"the id is generated. See get_memory_contract for the stored format."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Memory title")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category; becomes the directory")),
		mcp.WithString("body", mcp.Description("Markdown body")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags")),
		mcp.WithArray("sources", mcp.WithStringItems(), mcp.Description("Source references such as URLs")),
		mcp.WithString("abstract", mcp.Description("Short summary")),
		mcp.WithObject("custom", mcp.Description("Extra front-matter fields; protected keys are rejected")),
	), s.createMemory)

	s.mcp.AddTool(mcp.NewTool("read_memory",
		mcp.WithDescription("Read a memory by id, or by title when no id is given."),
		mcp.WithString("id", mcp.Description("Memory id")),
		mcp.WithString("title", mcp.Description("Memory title")),
	), s.readMemory)

	s.mcp.AddTool(mcp.NewTool("update_memory",
		mcp.WithDescription("Change fields of a memory. Omitted fields stay as they are. "+
			"A new title or category moves the file and rewrites markers pointing at it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("category", mcp.Description("New category")),
		mcp.WithString("body", mcp.Description("New Markdown body")),
		mcp.WithString("abstract", mcp.Description("New summary")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Replacement tag list")),
		mcp.WithArray("sources", mcp.WithStringItems(), mcp.Description("Replacement source list")),
		mcp.WithObject("custom", mcp.Description("Custom fields to set; null removes a key")),
	), s.updateMemory)

	s.mcp.AddTool(mcp.NewTool("delete_memory",
		mcp.WithDescription("Delete a memory file. Links pointing at it are left for the audit to report."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory id")),
	), s.deleteMemory)

	s.mcp.AddTool(mcp.NewTool("review_memory",
		mcp.WithDescription("Mark a memory as reviewed now."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory id")),
	), s.reviewMemory)

	s.mcp.AddTool(mcp.NewTool("list_memories",
		mcp.WithDescription("List memories, optionally filtered by category or tag."),
		mcp.WithString("category", mcp.Description("Category filter")),
		mcp.WithString("tag", mcp.Description("Tag filter")),
	), s.listMemories)

	s.mcp.AddTool(mcp.NewTool("search_memories",
		mcp.WithDescription("Full-text search through memory titles, abstracts and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithString("category", mcp.Description("Only search this category")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Results must carry all of these tags")),
	), s.searchMemories)

	s.mcp.AddTool(mcp.NewTool("link_memories",
		mcp.WithDescription("Link two memories in both directions."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Source memory id")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Target memory id")),
		mcp.WithString("display", mcp.Description("Optional display text for the marker in the source")),
	), s.linkMemories)

	s.mcp.AddTool(mcp.NewTool("unlink_memories",
		mcp.WithDescription("Remove the link between two memories on both sides."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Source memory id")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Target memory id")),
	), s.unlinkMemories)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all memories that link to the specified memory."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory id")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("audit_memories",
		mcp.WithDescription("Report broken links, asymmetric links, orphans, stale memories and unparsable files. Changes nothing."),
	), s.auditMemories)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Rebuild the search index from the memory files."),
	), s.reindex)

	s.mcp.AddTool(mcp.NewTool("get_memory_contract",
		mcp.WithDescription("Returns the on-disk memory format contract."),
	), s.getMemoryContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Memory Format Contract",
			mcp.WithResourceDescription("On-disk Markdown format of a memory."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// Listen serves MCP over the given streams until ctx is cancelled or in
// is closed.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// optString returns a pointer to the argument when the caller supplied it.
func optString(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func optStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func optObject(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func (s *Server) createMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	m, err := s.svc.Create(ctx, memservice.CreateRequest{
		Title:    req.GetString("title", ""),
		Category: req.GetString("category", ""),
		Body:     req.GetString("body", ""),
		Abstract: req.GetString("abstract", ""),
		Tags:     optStrings(args, "tags"),
		Sources:  optStrings(args, "sources"),
		Custom:   optObject(args, "custom"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func (s *Server) readMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	title := strings.TrimSpace(req.GetString("title", ""))
	if id == "" && title == "" {
		return mcp.NewToolResultError("either id or title is required"), nil
	}

	var (
		m   *models.Memory
		err error
	)
	if id != "" {
		m, err = s.svc.Get(ctx, id)
	} else {
		m, err = s.svc.GetByTitle(ctx, title)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func (s *Server) updateMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	m, err := s.svc.Update(ctx, id, memservice.UpdateRequest{
		Title:    optString(args, "title"),
		Category: optString(args, "category"),
		Body:     optString(args, "body"),
		Abstract: optString(args, "abstract"),
		Tags:     optStrings(args, "tags"),
		Sources:  optStrings(args, "sources"),
		Custom:   optObject(args, "custom"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func (s *Server) deleteMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.Delete(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted: " + m.Path), nil
}

func (s *Server) reviewMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.Review(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

type listEntry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Path     string   `json:"path"`
	Tags     []string `json:"tags,omitempty"`
}

func (s *Server) listMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ms, err := s.svc.List(ctx, memservice.ListFilter{
		Category: req.GetString("category", ""),
		Tag:      req.GetString("tag", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]listEntry, 0, len(ms))
	for _, m := range ms {
		out = append(out, listEntry{ID: m.ID, Title: m.Title, Category: m.Category, Path: m.Path, Tags: m.Tags})
	}
	return jsonResult(out)
}

func (s *Server) searchMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, index.SearchOptions{
		Limit:    req.GetInt("limit", 20),
		Category: req.GetString("category", ""),
		Tags:     optStrings(req.GetArguments(), "tags"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) linkMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Link(ctx, src, dst, req.GetString("display", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) unlinkMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Unlink(ctx, src, dst)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := s.svc.Backlinks(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText("No backlinks found."), nil
	}
	return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
}

func (s *Server) auditMemories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Audit(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) reindex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.Reindex(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]int{"indexed": n})
}

func (s *Server) getMemoryContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MemoryFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     MemoryFormatContract,
		},
	}, nil
}
