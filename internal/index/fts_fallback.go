//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"
)

func initFTS(_ context.Context, _ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the memories table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ Document) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

func ftsClear(_ context.Context, _ *sql.Tx) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled
// in). Title hits rank first.
func (db *DB) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	like := "%" + query + "%"
	filter, filterArgs := filterSQL(opts)
	args := append([]any{like, like, like, like}, filterArgs...)
	args = append(args, like, limitOf(opts))

	rows, err := db.conn.QueryContext(ctx, `
		SELECT m.id, m.path, m.title, m.category, m.body
		FROM memories m
		WHERE (m.title LIKE ? OR m.abstract LIKE ? OR m.body LIKE ? OR m.tags LIKE ?)`+filter+`
		ORDER BY (m.title LIKE ?) DESC, m.updated_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.ID, &r.Path, &r.Title, &r.Category, &body); err != nil {
			return nil, err
		}
		r.Snippet = excerpt(body, query, 200)
		out = append(out, r)
	}
	return out, rows.Err()
}

// excerpt returns up to width bytes of body around the first
// case-insensitive occurrence of query.
func excerpt(body, query string, width int) string {
	if len(body) <= width {
		return body
	}
	start := 0
	if i := strings.Index(strings.ToLower(body), strings.ToLower(query)); i > width/2 {
		start = i - width/2
	}
	end := min(start+width, len(body))
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}
	s := body[start:end]
	if start > 0 {
		s = "..." + s
	}
	if end < len(body) {
		s += "..."
	}
	return s
}
