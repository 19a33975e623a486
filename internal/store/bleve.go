package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndex is an in-memory Bleve index using the CJK analyzer on every
// field, so Chinese, Japanese and Korean posts are searchable alongside
// Latin-script ones.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Title   string `json:"title"`
	Tags    string `json:"tags"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// NewBleveIndex creates an empty in-memory index.
func NewBleveIndex() (*BleveIndex, error) {
	indexMapping := createIndexMapping()
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

// createIndexMapping maps every article field as CJK-analyzed text.
func createIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = cjk.AnalyzerName

	doc := bleve.NewDocumentMapping()
	for _, f := range AllFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = cjk.AnalyzerName
		fm.Store = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(string(f), fm)
	}
	indexMapping.DefaultMapping = doc

	return indexMapping
}

// Index adds documents to the index.
func (b *BleveIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bd := bleveDocument{
			Title:   doc.Title,
			Tags:    strings.Join(doc.Tags, " "),
			Summary: doc.Summary,
			Content: doc.Content,
		}
		if err := batch.Index(doc.ID, bd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns the requested page of hits.
func (b *BleveIndex) Search(ctx context.Context, q Query) (*Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	bq := buildBleveQuery(q)
	if bq == nil || q.Limit <= 0 {
		return &Result{Hits: []*Hit{}}, nil
	}

	req := bleve.NewSearchRequestOptions(bq, q.Limit, q.Offset, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, &Hit{DocID: h.ID, Score: h.Score})
	}
	return &Result{Hits: hits, Total: int(res.Total)}, nil
}

// buildBleveQuery returns nil when the query has no terms.
func buildBleveQuery(q Query) query.Query {
	text := strings.TrimSpace(q.Text)
	terms := Tokenize(text)
	if len(terms) == 0 {
		return nil
	}
	fields := q.fields()

	if q.Prefix {
		var perField []query.Query
		for _, f := range fields {
			parts := make([]query.Query, 0, len(terms))
			for _, t := range terms[:len(terms)-1] {
				tq := bleve.NewTermQuery(t)
				tq.SetField(string(f))
				parts = append(parts, tq)
			}
			pq := bleve.NewPrefixQuery(terms[len(terms)-1])
			pq.SetField(string(f))
			parts = append(parts, pq)

			cq := bleve.NewConjunctionQuery(parts...)
			cq.SetBoost(fieldBoosts[f])
			perField = append(perField, cq)
		}
		if len(perField) == 1 {
			return perField[0]
		}
		return bleve.NewDisjunctionQuery(perField...)
	}

	var perField []query.Query
	for _, f := range fields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(string(f))
		mq.SetBoost(fieldBoosts[f])
		perField = append(perField, mq)
	}
	if len(perField) == 1 {
		return perField[0]
	}
	return bleve.NewDisjunctionQuery(perField...)
}

// Stats returns index statistics.
func (b *BleveIndex) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &IndexStats{}
	}
	count, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(count)}
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ TextIndex = (*BleveIndex)(nil)
