//go:build sqlite_fts5

package index

import (
	"context"
	"strings"
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM memories_fts`).Scan(&count); err != nil {
		t.Fatalf("memories_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.IndexDocument(ctx, doc("fts", "FTS Memory", "The index provides powerful full-text search capabilities.")); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	results, err := db.Search(ctx, "powerful", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Snippet, "<b>powerful</b>") {
		t.Errorf("snippet = %q", results[0].Snippet)
	}
}

func TestFTS5_PunctuationIsNotSyntax(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("cpp", "C++ notes", "templates in C++"))
	if _, err := db.Search(ctx, `C++ "templates`, SearchOptions{}); err != nil {
		t.Errorf("query with punctuation failed: %v", err)
	}
}

func TestFTS5_RemoveDeletesFromFTS(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("gone", "Gone", "vanishing content"))
	_ = db.RemoveDocument(ctx, "gone")

	results, _ := db.Search(ctx, "vanishing", SearchOptions{})
	if len(results) != 0 {
		t.Error("removed memory still in FTS index")
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.IndexDocument(ctx, doc("evo", "Old", "original text"))
	_ = db.IndexDocument(ctx, doc("evo", "New", "replacement text"))

	if results, _ := db.Search(ctx, "original", SearchOptions{}); len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ := db.Search(ctx, "replacement", SearchOptions{})
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
