package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kernpunkt/llm-mem/internal/audit"
	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/indexsync"
	"github.com/kernpunkt/llm-mem/internal/memservice"
	"github.com/kernpunkt/llm-mem/internal/models"
	"github.com/kernpunkt/llm-mem/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	_, store := testutil.TestStore(t)
	reg := indexsync.NewRegistry(indexsync.OpenSQLite, testutil.Logger())
	t.Cleanup(func() { reg.Close() })
	h, err := reg.Acquire(store, testutil.IndexPath(t))
	if err != nil {
		t.Fatal(err)
	}
	svc, err := memservice.New(store, h, audit.Options{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	return New(svc, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"create_memory":       srv.createMemory,
		"read_memory":         srv.readMemory,
		"update_memory":       srv.updateMemory,
		"delete_memory":       srv.deleteMemory,
		"review_memory":       srv.reviewMemory,
		"list_memories":       srv.listMemories,
		"search_memories":     srv.searchMemories,
		"link_memories":       srv.linkMemories,
		"unlink_memories":     srv.unlinkMemories,
		"get_backlinks":       srv.getBacklinks,
		"audit_memories":      srv.auditMemories,
		"reindex":             srv.reindex,
		"get_memory_contract": srv.getMemoryContract,
	}
	handler, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := handler(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	var v T
	if r.IsError {
		t.Fatalf("tool failed: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return v
}

func create(t *testing.T, srv *Server, title string) models.Memory {
	t.Helper()
	return decode[models.Memory](t, callTool(t, srv, "create_memory", map[string]any{
		"title":    title,
		"category": "notes",
		"body":     "about " + title,
	}))
}

func TestCreateAndReadMemory(t *testing.T) {
	srv := testServer(t)

	m := decode[models.Memory](t, callTool(t, srv, "create_memory", map[string]any{
		"title":    "Retry Policy",
		"category": "Architecture",
		"body":     "Back off exponentially.",
		"tags":     []any{"http", "resilience"},
		"custom":   map[string]any{"owner": "platform"},
	}))
	if !strings.HasPrefix(m.Path, "architecture/retry-policy-") {
		t.Errorf("path = %q", m.Path)
	}
	if diff := cmp.Diff([]string{"http", "resilience"}, m.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}

	byID := decode[models.Memory](t, callTool(t, srv, "read_memory", map[string]any{"id": m.ID}))
	if byID.Body != "Back off exponentially." || byID.Custom["owner"] != "platform" {
		t.Errorf("read by id = %+v", byID)
	}

	byTitle := decode[models.Memory](t, callTool(t, srv, "read_memory", map[string]any{"title": "retry policy"}))
	if byTitle.ID != m.ID {
		t.Errorf("read by title id = %q, want %q", byTitle.ID, m.ID)
	}
}

func TestCreateMemory_ProtectedCustomKey(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "create_memory", map[string]any{
		"title":    "X",
		"category": "notes",
		"custom":   map[string]any{"id": "mine"},
	})
	if !r.IsError {
		t.Errorf("expected error, got %q", resultText(r))
	}
}

func TestReadMemory_Errors(t *testing.T) {
	srv := testServer(t)
	if r := callTool(t, srv, "read_memory", map[string]any{}); !r.IsError {
		t.Error("expected error without id or title")
	}
	if r := callTool(t, srv, "read_memory", map[string]any{"id": "nope"}); !r.IsError {
		t.Error("expected error for missing memory")
	}
}

func TestUpdateMemory_OnlySuppliedFields(t *testing.T) {
	srv := testServer(t)
	m := create(t, srv, "Alpha")

	got := decode[models.Memory](t, callTool(t, srv, "update_memory", map[string]any{
		"id":    m.ID,
		"title": "Beta",
	}))
	if got.Title != "Beta" || got.Body != "about Alpha" {
		t.Errorf("updated = %+v", got)
	}
	if !strings.HasPrefix(got.Path, "notes/beta-") {
		t.Errorf("path = %q", got.Path)
	}
}

func TestDeleteMemory(t *testing.T) {
	srv := testServer(t)
	m := create(t, srv, "Gone")

	r := callTool(t, srv, "delete_memory", map[string]any{"id": m.ID})
	if text := resultText(r); text != "deleted: "+m.Path {
		t.Errorf("delete result = %q", text)
	}
	if r := callTool(t, srv, "read_memory", map[string]any{"id": m.ID}); !r.IsError {
		t.Error("expected error after delete")
	}
}

func TestListAndSearch(t *testing.T) {
	srv := testServer(t)
	a := create(t, srv, "Kubernetes Ingress")
	create(t, srv, "Postgres Vacuum")

	list := decode[[]listEntry](t, callTool(t, srv, "list_memories", map[string]any{"category": "notes"}))
	if len(list) != 2 {
		t.Fatalf("list = %+v", list)
	}

	results := decode[[]index.SearchResult](t, callTool(t, srv, "search_memories", map[string]any{
		"query": "ingress",
		"limit": float64(5),
	}))
	if len(results) != 1 || results[0].ID != a.ID {
		t.Errorf("search = %+v", results)
	}
}

func TestLinkBacklinksUnlink(t *testing.T) {
	srv := testServer(t)
	a := create(t, srv, "A")
	b := create(t, srv, "B")

	r := callTool(t, srv, "link_memories", map[string]any{"source_id": a.ID, "target_id": b.ID})
	if r.IsError {
		t.Fatalf("link: %s", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"id": b.ID})
	if text := resultText(r); text != a.ID {
		t.Errorf("backlinks = %q, want %q", text, a.ID)
	}

	report := decode[audit.Report](t, callTool(t, srv, "audit_memories", nil))
	if !report.Healthy() {
		t.Errorf("audit not healthy: %+v", report)
	}

	r = callTool(t, srv, "unlink_memories", map[string]any{"source_id": a.ID, "target_id": b.ID})
	if r.IsError {
		t.Fatalf("unlink: %s", resultText(r))
	}
	r = callTool(t, srv, "get_backlinks", map[string]any{"id": b.ID})
	if text := resultText(r); text != "No backlinks found." {
		t.Errorf("backlinks after unlink = %q", text)
	}
}

func TestLinkMemories_Self(t *testing.T) {
	srv := testServer(t)
	a := create(t, srv, "A")
	r := callTool(t, srv, "link_memories", map[string]any{"source_id": a.ID, "target_id": a.ID})
	if !r.IsError {
		t.Error("expected error for self link")
	}
}

func TestReviewAndReindex(t *testing.T) {
	srv := testServer(t)
	m := create(t, srv, "Reviewed")

	got := decode[models.Memory](t, callTool(t, srv, "review_memory", map[string]any{"id": m.ID}))
	if got.LastReviewed.Before(m.LastReviewed) {
		t.Errorf("last_reviewed went backwards: %v < %v", got.LastReviewed, m.LastReviewed)
	}

	counts := decode[map[string]int](t, callTool(t, srv, "reindex", nil))
	if counts["indexed"] != 1 {
		t.Errorf("reindex = %v", counts)
	}
}

func TestGetMemoryContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_memory_contract", nil)
	if !strings.Contains(resultText(r), "## Related") {
		t.Error("contract missing the Related section")
	}

	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != formatURI || tc.Text != MemoryFormatContract {
		t.Errorf("resource = %+v", contents)
	}
}
