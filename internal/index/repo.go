package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// IndexDocument inserts or replaces a memory, its FTS entry and its
// outgoing links within a transaction.
func (db *DB) IndexDocument(ctx context.Context, d Document) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, path, title, category, tags, abstract, body, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			title      = excluded.title,
			category   = excluded.category,
			tags       = excluded.tags,
			abstract   = excluded.abstract,
			body       = excluded.body,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, d.ID, d.Path, d.Title, d.Category, string(tagsJSON), d.Abstract, d.Body, d.Checksum, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert memory: %w", err)
	}

	if err := ftsUpsert(ctx, tx, d); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source = ?`, d.ID); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(d.Links) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range d.Links {
			if _, err := stmt.ExecContext(ctx, d.ID, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// RemoveDocument removes a memory, its FTS entry and its outgoing links.
// Removing an unknown id is not an error.
func (db *DB) RemoveDocument(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source = ?`, id); err != nil {
		return fmt.Errorf("index: remove links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: remove memory: %w", err)
	}
	return tx.Commit()
}

// Clear removes every row.
func (db *DB) Clear(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsClear(ctx, tx); err != nil {
		return err
	}
	for _, table := range []string{"links", "memories"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Size returns the number of indexed memories.
func (db *DB) Size(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: size: %w", err)
	}
	return n, nil
}

// Checksums returns the indexed id and checksum of every file, keyed by path.
func (db *DB) Checksums(ctx context.Context) (map[string]Indexed, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, id, checksum FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Indexed)
	for rows.Next() {
		var p string
		var e Indexed
		if err := rows.Scan(&p, &e.ID, &e.Checksum); err != nil {
			return nil, err
		}
		out[p] = e
	}
	return out, rows.Err()
}

// Backlinks returns the ids of every memory whose links contain id.
func (db *DB) Backlinks(ctx context.Context, id string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT source FROM links WHERE target = ? ORDER BY source`, id)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every indexed memory and every structured link between
// indexed memories.
func (db *DB) Graph(ctx context.Context) ([]GraphNode, []GraphEdge, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, title, category FROM memories ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	nodes := []GraphNode{}
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.ID, &n.Title, &n.Category); err != nil {
			rows.Close()
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.conn.QueryContext(ctx, `
		SELECT l.source, l.target
		FROM links l
		JOIN memories m ON m.id = l.target
		ORDER BY l.source, l.target
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph edges: %w", err)
	}
	defer rows.Close()
	edges := []GraphEdge{}
	for rows.Next() {
		var e GraphEdge
		if err := rows.Scan(&e.Source, &e.Target); err != nil {
			return nil, nil, err
		}
		edges = append(edges, e)
	}
	return nodes, edges, rows.Err()
}

// filterSQL renders the category and tag filters for the memories table
// aliased as m.
func filterSQL(opts SearchOptions) (string, []any) {
	var clauses []string
	var args []any
	if opts.Category != "" {
		clauses = append(clauses, "m.category = ?")
		args = append(args, opts.Category)
	}
	for _, tag := range opts.Tags {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(m.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func limitOf(opts SearchOptions) int {
	if opts.Limit <= 0 {
		return defaultLimit
	}
	return opts.Limit
}
