package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/facade"
	"github.com/Aman-CERP/postindex/internal/host"
	"github.com/Aman-CERP/postindex/internal/indexfile"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// MockBackend records calls and returns canned results.
type MockBackend struct {
	mu          sync.Mutex
	searchInits []string
	filterInits []string
	lastSearch  protocol.SearchRequest
	lastSuggest protocol.SearchRequest
	lastFilter  protocol.FilterRequest

	InitErr   error
	SearchErr error
	Tags      []string
}

func (m *MockBackend) InitSearchIndex(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchInits = append(m.searchInits, url)
	return m.InitErr
}

func (m *MockBackend) InitFilterIndex(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterInits = append(m.filterInits, url)
	return m.InitErr
}

func (m *MockBackend) Search(_ context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	m.mu.Lock()
	m.lastSearch = req
	m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return &protocol.SearchResponse{
		Query:   req.Query,
		Results: []protocol.SearchHit{{ID: "a", Title: "A", URL: "/articles/a", Score: 2}},
		Total:   1, Page: 1, PageSize: 10, TotalPages: 1,
	}, nil
}

func (m *MockBackend) Suggest(_ context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	m.mu.Lock()
	m.lastSuggest = req
	m.mu.Unlock()
	return &protocol.SearchResponse{Query: req.Query, Results: []protocol.SearchHit{}}, nil
}

func (m *MockBackend) FilterArticles(_ context.Context, req protocol.FilterRequest) (*protocol.FilterResult, error) {
	m.mu.Lock()
	m.lastFilter = req
	m.mu.Unlock()
	return &protocol.FilterResult{
		Articles: []protocol.Article{{ID: "b", Title: "B", URL: "/articles/b", Content: "never exposed"}},
		Total:    13, Page: 1, Limit: 12, TotalPages: 2, HasMore: true,
	}, nil
}

func (m *MockBackend) GetAllTags(context.Context) ([]string, error) {
	return m.Tags, nil
}

func newTestServer(t *testing.T, b Backend) *Server {
	t.Helper()
	s, err := NewServer(b, Options{SearchIndexURL: "/search-index.bin", FilterIndexURL: "/filter-index.bin"})
	require.NoError(t, err)
	return s
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, Options{SearchIndexURL: "x"})
	require.Error(t, err)

	_, err = NewServer(&MockBackend{}, Options{})
	require.Error(t, err)
}

func TestSearchTool_InitializesLazilyAndMapsRequest(t *testing.T) {
	// Given: a server over a mock backend
	b := &MockBackend{}
	s := newTestServer(t, b)

	// When: calling the search tool
	_, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "go", Type: "title", Page: 2, PageSize: 5})

	// Then: the search index was initialized from the configured URL
	require.NoError(t, err)
	assert.Equal(t, []string{"/search-index.bin"}, b.searchInits)
	assert.Equal(t, protocol.SearchRequest{Query: "go", SearchType: "title", Page: 2, PageSize: 5}, b.lastSearch)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "/articles/a", out.Results[0].URL)
	assert.Equal(t, 1, out.Total)
}

func TestSearchTool_Validation(t *testing.T) {
	s := newTestServer(t, &MockBackend{})

	_, _, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{})
	assert.Equal(t, ErrCodeInvalidParams, MapError(err).Code)

	_, _, err = s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "x", Type: "suggest"})
	assert.Equal(t, ErrCodeInvalidParams, MapError(err).Code)
}

func TestSearchTool_InitFailureIsIndexUnavailable(t *testing.T) {
	b := &MockBackend{InitErr: pierrors.FetchFailed("failed to fetch search index: 404 Not Found", nil)}
	s := newTestServer(t, b)

	_, _, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "go"})

	mcpErr := MapError(err)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "404")
}

func TestSuggestTool(t *testing.T) {
	b := &MockBackend{}
	s := newTestServer(t, b)

	_, out, err := s.mcpSuggestHandler(context.Background(), nil, SuggestInput{Prefix: "und", Limit: 3})

	require.NoError(t, err)
	assert.Equal(t, protocol.SearchRequest{Query: "und", PageSize: 3}, b.lastSuggest)
	assert.NotNil(t, out.Results)

	_, _, err = s.mcpSuggestHandler(context.Background(), nil, SuggestInput{})
	assert.Equal(t, ErrCodeInvalidParams, MapError(err).Code)
}

func TestFilterTool_OmitsContent(t *testing.T) {
	b := &MockBackend{}
	s := newTestServer(t, b)

	_, out, err := s.mcpFilterHandler(context.Background(), nil, FilterInput{Tags: []string{"go"}, Sort: "title_asc"})

	require.NoError(t, err)
	assert.Equal(t, []string{"/filter-index.bin"}, b.filterInits)
	assert.Equal(t, protocol.FilterRequest{Tags: []string{"go"}, Sort: "title_asc"}, b.lastFilter)
	assert.True(t, out.HasMore)
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never exposed")
}

func TestListTagsTool(t *testing.T) {
	s := newTestServer(t, &MockBackend{Tags: []string{"go", "rust"}})

	_, out, err := s.mcpListTagsHandler(context.Background(), nil, ListTagsInput{})

	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, out.Tags)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "query failed", err: pierrors.QueryFailed("unknown sort", nil), code: ErrCodeInvalidParams},
		{name: "not initialized", err: pierrors.NotInitialized("search"), code: ErrCodeIndexUnavailable},
		{name: "corrupt", err: pierrors.IndexCorrupt("bad blob", nil), code: ErrCodeIndexUnavailable},
		{name: "worker fatal", err: pierrors.WorkerFatal("crash", nil), code: ErrCodeWorkerUnavailable},
		{name: "terminated", err: pierrors.Terminated(), code: ErrCodeWorkerUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, code: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, code: ErrCodeTimeout},
		{name: "unknown", err: errors.New("boom"), code: ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := pierrors.WorkerFatal("no daemon", nil).WithSuggestion("Start it.")
	assert.Equal(t, "no daemon Start it.", MapError(err).Message)
}

func TestServer_OverInMemoryTransport(t *testing.T) {
	// Given: a server backed by a real client and in-process host
	articles := []protocol.Article{
		{ID: "go-channels", Title: "Understanding Go channels", Date: "2024-05-02", Tags: []string{"go"}, URL: "/articles/go-channels", Content: "channels"},
	}
	blobs := map[string][]byte{}
	for url, kind := range map[string]indexfile.Kind{"/search-index.bin": indexfile.KindSearch, "/filter-index.bin": indexfile.KindFilter} {
		data, err := indexfile.Encode(&indexfile.Index{Kind: kind, Articles: articles}, indexfile.EncodeOptions{})
		require.NoError(t, err)
		blobs[url] = data
	}
	client := facade.New(&host.InProcessSpawner{Options: host.Options{Fetcher: mapFetcher(blobs)}})
	defer client.Terminate()
	s := newTestServer(t, client)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := mcpClient.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	// When: listing tools
	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	// Then: all four are registered
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"filter_articles", "list_tags", "search", "suggest"}, names)

	// When: calling search
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "search", Arguments: map[string]any{"query": "channels"}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	// Then: the structured result carries the article
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out SearchOutput
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "go-channels", out.Results[0].ID)
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := m[url]
	if !ok {
		return nil, pierrors.FetchFailed(url+": 404 Not Found", nil)
	}
	return data, nil
}
