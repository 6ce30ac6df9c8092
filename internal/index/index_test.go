package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func doc(id, title, body string, links ...string) Document {
	return Document{
		ID:        id,
		Path:      "notes/" + id + ".md",
		Title:     title,
		Category:  "notes",
		Tags:      []string{},
		Body:      body,
		Links:     links,
		Checksum:  "sum-" + id,
		UpdatedAt: time.Now(),
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"memories", "links"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
	if err := db.Initialize(context.Background()); err != nil {
		t.Errorf("Initialize must be idempotent: %v", err)
	}
}

func TestIndexDocumentAndChecksums(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.IndexDocument(ctx, doc("a", "Alpha", "body")); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	got, err := db.Checksums(ctx)
	if err != nil {
		t.Fatalf("Checksums: %v", err)
	}
	want := map[string]Indexed{"notes/a.md": {ID: "a", Checksum: "sum-a"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("checksums (-want +got):\n%s", diff)
	}
}

func TestIndexDocument_ReplacesPathAndLinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("a", "Old", "old body", "x"))
	moved := doc("a", "New", "new body", "y")
	moved.Path = "archive/a.md"
	if err := db.IndexDocument(ctx, moved); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	if n, _ := db.Size(ctx); n != 1 {
		t.Errorf("size = %d, want 1", n)
	}
	sums, _ := db.Checksums(ctx)
	if _, ok := sums["archive/a.md"]; !ok || len(sums) != 1 {
		t.Errorf("checksums = %v", sums)
	}
	if bl, _ := db.Backlinks(ctx, "x"); len(bl) != 0 {
		t.Error("old link should be removed on upsert")
	}
	if bl, _ := db.Backlinks(ctx, "y"); len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("a", "A", "", "b"))
	_ = db.IndexDocument(ctx, doc("c", "C", "", "b"))

	bl, err := db.Backlinks(ctx, "b")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, bl); diff != "" {
		t.Errorf("backlinks (-want +got):\n%s", diff)
	}
}

func TestRemoveDocument(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("del", "Del", "body", "target"))

	if err := db.RemoveDocument(ctx, "del"); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if n, _ := db.Size(ctx); n != 0 {
		t.Errorf("size = %d after remove", n)
	}
	if bl, _ := db.Backlinks(ctx, "target"); len(bl) != 0 {
		t.Errorf("expected 0 backlinks after remove, got %d", len(bl))
	}
	if err := db.RemoveDocument(ctx, "never-indexed"); err != nil {
		t.Errorf("removing an unknown id: %v", err)
	}
}

func TestClearAndSize(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("a", "A", "one", "b"))
	_ = db.IndexDocument(ctx, doc("b", "B", "two", "a"))
	if n, err := db.Size(ctx); err != nil || n != 2 {
		t.Fatalf("Size = %d, %v", n, err)
	}
	if err := db.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := db.Size(ctx); n != 0 {
		t.Errorf("size after clear = %d", n)
	}
	if res, _ := db.Search(ctx, "one", SearchOptions{}); len(res) != 0 {
		t.Errorf("search after clear = %+v", res)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("s", "Search Me", "uniqueword appears here"))

	results, err := db.Search(ctx, "uniqueword", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "s" || results[0].Path != "notes/s.md" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected a snippet")
	}
}

func TestSearch_Filters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := doc("a", "Caching", "redis caching layer")
	a.Tags = []string{"infra", "redis"}
	b := doc("b", "Caching Policy", "caching rules")
	b.Category = "policy"
	b.Tags = []string{"infra"}
	_ = db.IndexDocument(ctx, a)
	_ = db.IndexDocument(ctx, b)

	ids := func(rs []SearchResult) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	res, err := db.Search(ctx, "caching", SearchOptions{Category: "policy"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, ids(res)); diff != "" {
		t.Errorf("category filter (-want +got):\n%s", diff)
	}

	res, _ = db.Search(ctx, "caching", SearchOptions{Tags: []string{"infra", "redis"}})
	if diff := cmp.Diff([]string{"a"}, ids(res)); diff != "" {
		t.Errorf("tag filter (-want +got):\n%s", diff)
	}

	res, _ = db.Search(ctx, "caching", SearchOptions{Limit: 1})
	if len(res) != 1 {
		t.Errorf("limit ignored: %d results", len(res))
	}
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("a", "A", "", "b", "gone"))
	_ = db.IndexDocument(ctx, doc("b", "B", "", "a"))

	nodes, edges, err := db.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("nodes = %+v", nodes)
	}
	want := []GraphEdge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}}
	if diff := cmp.Diff(want, edges); diff != "" {
		t.Errorf("edges (-want +got):\n%s", diff)
	}
}

func TestDestroy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("db file should be removed, stat err = %v", err)
	}
}

func TestWriteAdvancesFileModTime(t *testing.T) {
	db := testDB(t)
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(db.Path(), past, past); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexDocument(context.Background(), doc("a", "A", "")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(db.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().After(past) {
		t.Errorf("commit did not touch the db file: %v", info.ModTime())
	}
}
