package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteIndex implements TextIndex on an in-memory SQLite FTS5 table.
// Text is stored pre-tokenized (see Tokenize) so CJK bigrams are
// separate FTS5 terms.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ TextIndex = (*SQLiteIndex)(nil)

// NewSQLiteIndex creates an empty in-memory FTS5 index.
func NewSQLiteIndex() (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	idx := &SQLiteIndex{db: db}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	schema := `
	-- doc_id is UNINDEXED (stored but not searchable)
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_articles USING fts5(
		doc_id UNINDEXED,
		title,
		tags,
		summary,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Index adds documents to the index.
func (s *SQLiteIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so we delete first
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_articles WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_articles(doc_id, title, tags, summary, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	for _, doc := range docs {
		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID,
			joinTerms(doc.Title),
			joinTerms(strings.Join(doc.Tags, " ")),
			joinTerms(doc.Summary),
			joinTerms(doc.Content),
		); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns the requested page of hits, scored by FTS5 bm25().
func (s *SQLiteIndex) Search(ctx context.Context, q Query) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	match := buildMatchExpr(q)
	if match == "" || q.Limit <= 0 {
		return &Result{Hits: []*Hit{}}, nil
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fts_articles WHERE fts_articles MATCH ?`, match).Scan(&total)
	if err != nil {
		if isMatchSyntaxError(err) {
			return &Result{Hits: []*Hit{}}, nil
		}
		return nil, fmt.Errorf("count failed: %w", err)
	}

	// bm25() returns negative values where lower = better match. Column
	// weights follow fieldBoosts; doc_id gets zero.
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_articles, 0.0, 3.0, 2.0, 1.5, 1.0) AS score
		FROM fts_articles
		WHERE fts_articles MATCH ?
		ORDER BY score, doc_id
		LIMIT ? OFFSET ?
	`, match, q.Limit, q.Offset)
	if err != nil {
		if isMatchSyntaxError(err) {
			return &Result{Hits: []*Hit{}}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]*Hit, 0, q.Limit)
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		// Negate so higher = better, consistent with Bleve
		hits = append(hits, &Hit{DocID: docID, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{Hits: hits, Total: total}, nil
}

// buildMatchExpr renders q as an FTS5 MATCH expression. Terms are quoted;
// Tokenize only yields letters and digits so no escaping is needed.
func buildMatchExpr(q Query) string {
	terms := Tokenize(q.Text)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	var body string
	if q.Prefix {
		quoted[len(quoted)-1] += "*"
		body = strings.Join(quoted, " AND ")
	} else {
		body = strings.Join(quoted, " OR ")
	}

	fields := q.fields()
	if len(fields) == len(AllFields) {
		return body
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return "{" + strings.Join(names, " ") + "} : (" + body + ")"
}

func isMatchSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

// Stats returns index statistics.
func (s *SQLiteIndex) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &IndexStats{}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fts_articles`).Scan(&count); err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: count}
}

// Close closes the index.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Idempotent (matches Bleve behavior)
	}
	s.closed = true
	return s.db.Close()
}
