// Package store provides the full-text indexes behind the search engine.
//
// Two backends implement TextIndex: Bleve (in-memory, CJK-aware analysis)
// and SQLite FTS5 (modernc.org/sqlite, in-memory). Both only rank; article
// data stays with the caller and is looked up by document ID.
package store

import "context"

// Field names an indexed article field.
type Field string

const (
	FieldTitle   Field = "title"
	FieldTags    Field = "tags"
	FieldSummary Field = "summary"
	FieldContent Field = "content"
)

// AllFields lists every indexed field, in boost order.
var AllFields = []Field{FieldTitle, FieldTags, FieldSummary, FieldContent}

// fieldBoosts weights matches per field when several fields are searched.
var fieldBoosts = map[Field]float64{
	FieldTitle:   3.0,
	FieldTags:    2.0,
	FieldSummary: 1.5,
	FieldContent: 1.0,
}

// Document is one article as seen by a text index.
type Document struct {
	ID      string
	Title   string
	Tags    []string
	Summary string
	Content string
}

// Query describes one ranked lookup.
type Query struct {
	// Text is the raw user query.
	Text string

	// Fields restricts matching. Empty means AllFields.
	Fields []Field

	// Prefix treats the last query term as a prefix and requires every
	// term to match. Used for autocomplete.
	Prefix bool

	// Offset and Limit select the page of hits returned.
	Offset int
	Limit  int
}

// Hit is one ranked document.
type Hit struct {
	DocID string
	Score float64
}

// Result holds one page of hits and the total match count.
type Result struct {
	Hits  []*Hit
	Total int
}

// IndexStats provides statistics about a text index.
type IndexStats struct {
	DocumentCount int
}

// TextIndex ranks documents for a query.
type TextIndex interface {
	// Index adds documents. Re-indexing an ID replaces it.
	Index(ctx context.Context, docs []*Document) error

	// Search returns the requested page of hits, best first.
	// An empty query matches nothing.
	Search(ctx context.Context, q Query) (*Result, error)

	// Stats returns index statistics.
	Stats() *IndexStats

	Close() error
}

func (q Query) fields() []Field {
	if len(q.Fields) == 0 {
		return AllFields
	}
	return q.Fields
}
