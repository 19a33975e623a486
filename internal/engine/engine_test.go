package engine

import (
	"encoding/json"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/indexfile"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

func testArticles() []protocol.Article {
	return []protocol.Article{
		{ID: "go-channels", Title: "Understanding Go channels", Date: "2024-05-02", Tags: []string{"Go", "concurrency"},
			Summary: "Buffered and unbuffered channels.", URL: "/articles/go-channels", Content: "Channels connect goroutines."},
		{ID: "go-generics", Title: "Go generics in practice", Date: "2024-03-10", Tags: []string{"Go"},
			Summary: "Type parameters.", URL: "/articles/go-generics", Content: "Constraints and type sets."},
		{ID: "rust-async", Title: "Async Rust", Date: "2023-11-20", Tags: []string{"rust", "concurrency"},
			Summary: "Futures and executors.", URL: "/articles/rust-async", Content: "Channels in tokio."},
		{ID: "untagged", Title: "A note", Date: "2022-01-01",
			Summary: "Nothing much.", URL: "/articles/untagged", Content: "Plain."},
	}
}

func blob(t *testing.T, kind indexfile.Kind) []byte {
	t.Helper()
	data, err := indexfile.Encode(&indexfile.Index{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Articles:    testArticles(),
	}, indexfile.EncodeOptions{Compress: true})
	require.NoError(t, err)
	return data
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// --- search ---

func TestSearchEngine_BeforeInit(t *testing.T) {
	e := NewSearchEngine("bleve", 0)

	_, err := e.SearchCached(`{"query":"go"}`)
	assert.Equal(t, pierrors.ErrCodeNotInitialized, pierrors.GetCode(err))
}

func TestSearchEngine_SearchCachedReturnsResponseJSON(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			// Given: an initialized engine
			e := NewSearchEngine(backend, 8)
			require.NoError(t, e.Init(blob(t, indexfile.KindSearch)))
			defer e.Close()

			// When: searching through the JSON entrypoint
			out, err := e.SearchCached(`{"query":"channels"}`)
			require.NoError(t, err)

			// Then: the response decodes with defaults applied
			var resp protocol.SearchResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "channels", resp.Query)
			assert.Equal(t, protocol.SearchTypeAll, resp.SearchType)
			assert.Equal(t, 1, resp.Page)
			assert.Equal(t, protocol.DefaultPageSize, resp.PageSize)
			assert.Equal(t, 2, resp.Total)
			assert.Equal(t, 1, resp.TotalPages)
			require.Len(t, resp.Results, 2)
			assert.Equal(t, "go-channels", resp.Results[0].ID)
			assert.Equal(t, "/articles/go-channels", resp.Results[0].URL)
		})
	}
}

func TestSearchEngine_SearchTypes(t *testing.T) {
	e := NewSearchEngine("bleve", 8)
	require.NoError(t, e.Init(blob(t, indexfile.KindSearch)))

	tests := []struct {
		name    string
		req     protocol.SearchRequest
		wantIDs []string
	}{
		{"title only", protocol.SearchRequest{Query: "channels", SearchType: "title"}, []string{"go-channels"}},
		{"content only", protocol.SearchRequest{Query: "tokio", SearchType: "content"}, []string{"rust-async"}},
		{"tags", protocol.SearchRequest{Query: "concurrency", SearchType: "tags"}, []string{"go-channels", "rust-async"}},
		{"suggest prefix", protocol.SearchRequest{Query: "go gen", SearchType: "suggest"}, []string{"go-generics"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.Search(t.Context(), tt.req)
			require.NoError(t, err)

			ids := make([]string, len(resp.Results))
			for i, r := range resp.Results {
				ids[i] = r.ID
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestSearchEngine_UnknownSearchType(t *testing.T) {
	e := NewSearchEngine("bleve", 8)
	require.NoError(t, e.Init(blob(t, indexfile.KindSearch)))

	_, err := e.SearchCached(`{"query":"go","search_type":"fuzzy"}`)
	assert.Equal(t, pierrors.ErrCodeQueryFailed, pierrors.GetCode(err))
}

func TestSearchEngine_PagingClamps(t *testing.T) {
	e := NewSearchEngine("bleve", 8)
	require.NoError(t, e.Init(blob(t, indexfile.KindSearch)))

	resp, err := e.Search(t.Context(), protocol.SearchRequest{Query: "channels", Page: -1, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, protocol.MaxPageSize, resp.PageSize)

	resp, err = e.Search(t.Context(), protocol.SearchRequest{Query: "channels", Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Len(t, resp.Results, 1)
}

func TestSearchEngine_HugePageIsEmpty(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			e := NewSearchEngine(backend, 8)
			require.NoError(t, e.Init(blob(t, indexfile.KindSearch)))

			// When: the page offset would overflow int
			resp, err := e.Search(t.Context(), protocol.SearchRequest{Query: "channels", Page: math.MaxInt/protocol.DefaultPageSize + 2})

			// Then: the page is past the end
			require.NoError(t, err)
			assert.Empty(t, resp.Results)
			assert.Positive(t, resp.Total)
		})
	}
}

func TestSearchEngine_ReinitPurgesCache(t *testing.T) {
	// Given: a cached response
	e := NewSearchEngine("bleve", 8)
	require.NoError(t, e.Init(blob(t, indexfile.KindSearch)))
	first, err := e.SearchCached(`{"query":"channels"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, e.cache.Len())

	// When: re-initializing with an index that lacks the matches
	empty, err := indexfile.Encode(&indexfile.Index{Kind: indexfile.KindSearch}, indexfile.EncodeOptions{})
	require.NoError(t, err)
	require.NoError(t, e.Init(empty))

	// Then: the same request is recomputed
	second, err := e.SearchCached(`{"query":"channels"}`)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, `"total":0`)
}

func TestSearchEngine_InitRejectsCorruptAndWrongKind(t *testing.T) {
	e := NewSearchEngine("bleve", 8)

	err := e.Init([]byte("garbage"))
	assert.Equal(t, pierrors.ErrCodeIndexCorrupt, pierrors.GetCode(err))

	err = e.Init(blob(t, indexfile.KindFilter))
	assert.Equal(t, pierrors.ErrCodeIndexCorrupt, pierrors.GetCode(err))
}

// --- filter ---

func TestFilterEngine_BeforeInit(t *testing.T) {
	e := NewFilterEngine()

	assert.Nil(t, e.GetAllTags())
	_, err := e.FilterArticles(`{}`)
	assert.Equal(t, pierrors.ErrCodeNotInitialized, pierrors.GetCode(err))
}

func TestFilterEngine_GetAllTagsSorted(t *testing.T) {
	e := NewFilterEngine()
	require.NoError(t, e.Init(blob(t, indexfile.KindFilter)))

	assert.Equal(t, []string{"concurrency", "Go", "rust"}, e.GetAllTags())
}

func TestFilterEngine_Filter(t *testing.T) {
	e := NewFilterEngine()
	require.NoError(t, e.Init(blob(t, indexfile.KindFilter)))

	tests := []struct {
		name    string
		req     protocol.FilterRequest
		wantIDs []string
	}{
		{"no filter newest first", protocol.FilterRequest{}, []string{"go-channels", "go-generics", "rust-async", "untagged"}},
		{"single tag", protocol.FilterRequest{Tags: []string{"go"}}, []string{"go-channels", "go-generics"}},
		{"tags are ANDed", protocol.FilterRequest{Tags: []string{"Go", "concurrency"}}, []string{"go-channels"}},
		{"unknown tag", protocol.FilterRequest{Tags: []string{"python"}}, []string{}},
		{"year prefix", protocol.FilterRequest{Date: "2024"}, []string{"go-channels", "go-generics"}},
		{"month prefix", protocol.FilterRequest{Date: "2024-03"}, []string{"go-generics"}},
		{"date asc", protocol.FilterRequest{Sort: "date_asc", Tags: []string{"concurrency"}}, []string{"rust-async", "go-channels"}},
		{"title asc", protocol.FilterRequest{Sort: "title_asc"}, []string{"untagged", "rust-async", "go-generics", "go-channels"}},
		{"title desc", protocol.FilterRequest{Sort: "title_desc"}, []string{"go-channels", "go-generics", "rust-async", "untagged"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.FilterArticles(mustJSON(t, tt.req))
			require.NoError(t, err)

			ids := make([]string, len(res.Articles))
			for i, a := range res.Articles {
				ids[i] = a.ID
				assert.Empty(t, a.Content)
				assert.NotNil(t, a.Tags)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), res.Total)
		})
	}
}

func TestFilterEngine_Paging(t *testing.T) {
	e := NewFilterEngine()
	require.NoError(t, e.Init(blob(t, indexfile.KindFilter)))

	res, err := e.Filter(protocol.FilterRequest{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Articles, 1)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.TotalPages)
	assert.False(t, res.HasMore)

	res, err = e.Filter(protocol.FilterRequest{Page: 1, Limit: 3})
	require.NoError(t, err)
	assert.True(t, res.HasMore)

	res, err = e.Filter(protocol.FilterRequest{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, res.Articles)
	assert.Equal(t, protocol.DefaultFilterLimit, res.Limit)
}

func TestFilterEngine_HugePageIsEmpty(t *testing.T) {
	e := NewFilterEngine()
	require.NoError(t, e.Init(blob(t, indexfile.KindFilter)))

	res, err := e.Filter(protocol.FilterRequest{Page: math.MaxInt/protocol.DefaultFilterLimit + 2})
	require.NoError(t, err)
	assert.Empty(t, res.Articles)
	assert.Equal(t, 4, res.Total)
	assert.False(t, res.HasMore)

	res, err = e.Filter(protocol.FilterRequest{Page: math.MaxInt, Limit: protocol.MaxPageSize})
	require.NoError(t, err)
	assert.Empty(t, res.Articles)
}

func TestFilterEngine_UnknownSort(t *testing.T) {
	e := NewFilterEngine()
	require.NoError(t, e.Init(blob(t, indexfile.KindFilter)))

	_, err := e.Filter(protocol.FilterRequest{Sort: "random"})
	assert.Equal(t, pierrors.ErrCodeQueryFailed, pierrors.GetCode(err))
}

// --- modules and providers ---

func TestModules_MissingExport(t *testing.T) {
	sm := &SearchModule{InitSearchIndex: func([]byte) error { return nil }}
	assert.Equal(t, ExportSearchCached, sm.MissingExport())

	fm := &FilterModule{Init: func([]byte) error { return nil }, GetAllTags: func() ([]string, error) { return nil, nil }}
	assert.Equal(t, ExportFilterArticles, fm.MissingExport())

	assert.Equal(t, ExportFilterInit, (&FilterModule{}).MissingExport())
}

func TestBuiltinProvider_ModulesAreComplete(t *testing.T) {
	p := NewBuiltinProvider("bleve", 0)

	sm, err := p.LoadSearch(t.Context())
	require.NoError(t, err)
	assert.Empty(t, sm.MissingExport())

	fm, err := p.LoadFilter(t.Context())
	require.NoError(t, err)
	assert.Empty(t, fm.MissingExport())
}

func TestNativeProvider_MissingLibrary(t *testing.T) {
	p := NewNativeProvider("/nonexistent/libpostindex.so")

	_, err := p.LoadSearch(t.Context())
	assert.Equal(t, pierrors.ErrCodeConfigInvalid, pierrors.GetCode(err))

	// Opened once; the same error is returned again
	_, err2 := p.LoadFilter(t.Context())
	assert.Same(t, err, err2)
}

func TestNativeError(t *testing.T) {
	assert.NoError(t, nativeError(`{"results":[]}`))
	assert.NoError(t, nativeError(`[]`))
	assert.Error(t, nativeError(``))

	err := nativeError(`{"error":"bad query"}`)
	assert.Equal(t, pierrors.ErrCodeQueryFailed, pierrors.GetCode(err))
	assert.Contains(t, err.Error(), "bad query")
}

// fakeLib stands in for a loaded engine library and records how many
// calls run at once.
type fakeLib struct {
	active    atomic.Int32
	maxActive atomic.Int32
	inits     atomic.Int32
	tags      string
}

func (f *fakeLib) enter() func() {
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { f.active.Add(-1) }
}

func (f *fakeLib) bytesFunc(string) func([]byte) string {
	return func([]byte) string {
		defer f.enter()()
		f.inits.Add(1)
		return ""
	}
}

func (f *fakeLib) stringFunc(name string) func(string) string {
	switch name {
	case ExportSearchCached:
		return func(string) string {
			defer f.enter()()
			return `{"results":[]}`
		}
	case ExportFilterArticles:
		return func(string) string {
			defer f.enter()()
			return `{"articles":[]}`
		}
	}
	return nil
}

func (f *fakeLib) voidFunc(string) func() string {
	return func() string {
		defer f.enter()()
		return f.tags
	}
}

func fakeProvider(lib *fakeLib) *NativeProvider {
	return newNativeProvider("libfake.so", func(string) (symbols, error) { return lib, nil })
}

func TestNativeProvider_SerializesCallsAcrossModules(t *testing.T) {
	// Given: two hosts' modules sharing one library
	lib := &fakeLib{tags: `["go"]`}
	p := fakeProvider(lib)
	a, err := p.LoadSearch(t.Context())
	require.NoError(t, err)
	b, err := p.LoadSearch(t.Context())
	require.NoError(t, err)
	f, err := p.LoadFilter(t.Context())
	require.NoError(t, err)
	require.NoError(t, a.InitSearchIndex([]byte("index")))
	require.NoError(t, b.InitSearchIndex([]byte("index")))
	require.NoError(t, f.Init([]byte("filter")))

	// When: querying from many goroutines
	var wg sync.WaitGroup
	for i := range 24 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_, err := a.SearchCached(`{"query":"go"}`)
				assert.NoError(t, err)
			case 1:
				_, err := b.SearchCached(`{"query":"go"}`)
				assert.NoError(t, err)
			default:
				_, err := f.FilterArticles(`{}`)
				assert.NoError(t, err)
				_, err = f.GetAllTags()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Then: the library never saw two calls at once
	assert.Equal(t, int32(1), lib.maxActive.Load())
}

func TestNativeProvider_SharesOneEnginePerBlob(t *testing.T) {
	lib := &fakeLib{}
	p := fakeProvider(lib)
	a, err := p.LoadSearch(t.Context())
	require.NoError(t, err)
	b, err := p.LoadSearch(t.Context())
	require.NoError(t, err)

	// Same blob: the second module joins the engine
	require.NoError(t, a.InitSearchIndex([]byte("v1")))
	require.NoError(t, b.InitSearchIndex([]byte("v1")))
	assert.Equal(t, int32(1), lib.inits.Load())
	require.NoError(t, b.Close())

	// Different blob while a still holds the engine
	err = b.InitSearchIndex([]byte("v2"))
	assert.Equal(t, pierrors.ErrCodeInternal, pierrors.GetCode(err))

	// Once released, a new blob rebuilds it
	require.NoError(t, a.Close())
	require.NoError(t, b.InitSearchIndex([]byte("v2")))
	assert.Equal(t, int32(2), lib.inits.Load())
}

func TestNativeProvider_UndecodableTagsAreQueryFailed(t *testing.T) {
	lib := &fakeLib{tags: "not json"}
	f, err := fakeProvider(lib).LoadFilter(t.Context())
	require.NoError(t, err)

	_, err = f.GetAllTags()
	assert.Equal(t, pierrors.ErrCodeQueryFailed, pierrors.GetCode(err))

	lib.tags = `["go","rust"]`
	tags, err := f.GetAllTags()
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, tags)
}
