package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/indexfile"
	"github.com/Aman-CERP/postindex/internal/protocol"
	"github.com/Aman-CERP/postindex/internal/store"
)

// DefaultQueryCacheSize is the default number of query results to cache.
const DefaultQueryCacheSize = 256

// SearchEngine ranks articles through a store.TextIndex and caches encoded
// responses by request JSON.
type SearchEngine struct {
	backend   string
	cacheSize int

	mu       sync.RWMutex
	index    store.TextIndex
	articles map[string]protocol.Article
	cache    *lru.Cache[string, string]
}

// NewSearchEngine creates an uninitialized engine using the given text
// index backend.
func NewSearchEngine(backend string, cacheSize int) *SearchEngine {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &SearchEngine{
		backend:   backend,
		cacheSize: cacheSize,
		cache:     cache,
	}
}

// Init builds the text index from a search index blob, replacing any
// previous index. The query cache is reset.
func (e *SearchEngine) Init(data []byte) error {
	idx, err := indexfile.DecodeKind(data, indexfile.KindSearch)
	if err != nil {
		return err
	}

	ti, err := store.NewTextIndex(e.backend)
	if err != nil {
		return pierrors.ConfigError("create text index", err)
	}

	articles := make(map[string]protocol.Article, len(idx.Articles))
	docs := make([]*store.Document, 0, len(idx.Articles))
	for _, a := range idx.Articles {
		if a.ID == "" {
			_ = ti.Close()
			return pierrors.IndexCorrupt("article without id in search index", nil)
		}
		articles[a.ID] = a
		docs = append(docs, &store.Document{
			ID:      a.ID,
			Title:   a.Title,
			Tags:    a.Tags,
			Summary: a.Summary,
			Content: a.Content,
		})
	}
	if err := ti.Index(context.Background(), docs); err != nil {
		_ = ti.Close()
		return pierrors.IndexCorrupt("index articles", err)
	}

	e.mu.Lock()
	old := e.index
	e.index = ti
	e.articles = articles
	e.cache.Purge()
	e.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// SearchCached decodes requestJSON, serves it from the cache when possible
// and returns the encoded SearchResponse.
func (e *SearchEngine) SearchCached(requestJSON string) (string, error) {
	// Held across lookup and insert so Init cannot purge in between.
	e.mu.RLock()
	defer e.mu.RUnlock()

	if out, ok := e.cache.Get(requestJSON); ok {
		return out, nil
	}

	var req protocol.SearchRequest
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return "", pierrors.QueryFailed(fmt.Sprintf("invalid search request: %v", err), err)
	}

	resp, err := e.search(context.Background(), req)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return "", pierrors.InternalError("encode search response", err)
	}
	e.cache.Add(requestJSON, string(out))
	return string(out), nil
}

// Search runs req against the index.
func (e *SearchEngine) Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.search(ctx, req)
}

func (e *SearchEngine) search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	if e.index == nil {
		return nil, pierrors.NotInitialized("search")
	}

	searchType := req.SearchType
	if searchType == "" {
		searchType = protocol.SearchTypeAll
	}
	q, err := queryFor(searchType, req.Query)
	if err != nil {
		return nil, err
	}

	page := protocol.ClampPage(req.Page)
	size := protocol.ClampSize(req.PageSize, protocol.DefaultPageSize)
	q.Offset = protocol.PageOffset(page, size, len(e.articles))
	q.Limit = size

	res, err := e.index.Search(ctx, q)
	if err != nil {
		return nil, pierrors.QueryFailed("search failed", err)
	}

	hits := make([]protocol.SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		a, ok := e.articles[h.DocID]
		if !ok {
			continue
		}
		hits = append(hits, protocol.SearchHit{
			ID:      a.ID,
			Title:   a.Title,
			URL:     a.URL,
			Date:    a.Date,
			Tags:    nonNilTags(a.Tags),
			Summary: a.Summary,
			Score:   h.Score,
		})
	}

	return &protocol.SearchResponse{
		Query:      req.Query,
		SearchType: searchType,
		Results:    hits,
		Total:      res.Total,
		Page:       page,
		PageSize:   size,
		TotalPages: protocol.TotalPages(res.Total, size),
	}, nil
}

func queryFor(searchType, text string) (store.Query, error) {
	q := store.Query{Text: text}
	switch searchType {
	case protocol.SearchTypeAll:
	case protocol.SearchTypeTitle:
		q.Fields = []store.Field{store.FieldTitle}
	case protocol.SearchTypeContent:
		q.Fields = []store.Field{store.FieldContent}
	case protocol.SearchTypeTags:
		q.Fields = []store.Field{store.FieldTags}
	case protocol.SearchTypeSuggest:
		q.Fields = []store.Field{store.FieldTitle}
		q.Prefix = true
	default:
		return q, pierrors.QueryFailed(fmt.Sprintf("unknown search_type %q", searchType), nil).
			WithDetail("search_type", searchType)
	}
	return q, nil
}

// Close releases the text index.
func (e *SearchEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index == nil {
		return nil
	}
	err := e.index.Close()
	e.index = nil
	return err
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
