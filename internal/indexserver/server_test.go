package indexserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/postindex/internal/facade"
	"github.com/Aman-CERP/postindex/internal/fetch"
	"github.com/Aman-CERP/postindex/internal/host"
	"github.com/Aman-CERP/postindex/internal/indexbuild"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

func builtDir(t *testing.T) string {
	t.Helper()
	content := t.TempDir()
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(content, "go.md"),
		[]byte("---\ntitle: Go channels\ndate: 2024-05-02\ntags: [go]\n---\nChannels connect goroutines."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(content, "rust.md"),
		[]byte("---\ntitle: Async Rust\ndate: 2023-11-20\ntags: [rust]\n---\nFutures poll."), 0o644))
	_, err := indexbuild.Build(context.Background(), indexbuild.Options{ContentDir: content, OutDir: out, Compress: true})
	require.NoError(t, err)
	return out
}

func TestServeIndex_HeadersAndBody(t *testing.T) {
	// Given: a server over built indexes
	dir := builtDir(t)
	srv := httptest.NewServer(NewRouter(Options{Dir: dir}))
	defer srv.Close()

	// When: fetching the search blob
	resp, err := http.Get(srv.URL + "/index/" + indexbuild.SearchIndexName)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Then: the bytes match the file and caching is disabled
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	want, err := os.ReadFile(filepath.Join(dir, indexbuild.SearchIndexName))
	require.NoError(t, err)
	assert.Equal(t, want, body)
}

func TestServeIndex_NotFound(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Options{Dir: t.TempDir()}))
	defer srv.Close()

	for _, path := range []string{"/index/" + indexbuild.FilterIndexName, "/index/secrets.txt", "/index/..%2Fetc%2Fpasswd"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestListArticles(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Options{Dir: builtDir(t)}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/articles")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list articleList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.True(t, list.Success)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "go", list.Articles[0].ID)
	assert.Empty(t, list.Articles[0].Content)
}

func TestListArticles_MissingIndex(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Options{Dir: t.TempDir()}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/articles")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list articleList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, list.Success)
	assert.NotNil(t, list.Articles)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Options{Dir: builtDir(t)}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Indexes[indexbuild.SearchIndexName])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "postindex_http_requests_total")
}

func TestAllowOrigin(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Options{Dir: t.TempDir(), AllowOrigin: "https://blog.example"}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/index/"+indexbuild.SearchIndexName, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://blog.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEndToEnd_FacadeOverHTTP(t *testing.T) {
	// Given: the index server and a client whose host fetches from it
	srv := httptest.NewServer(NewRouter(Options{Dir: builtDir(t)}))
	defer srv.Close()
	f, err := fetch.NewFetcher(fetch.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	c := facade.New(&host.InProcessSpawner{Options: host.Options{Fetcher: f}})
	defer c.Terminate()

	// When: both capabilities are initialized from relative URLs
	require.NoError(t, c.InitSearchIndex(context.Background(), "/index/"+indexbuild.SearchIndexName))
	require.NoError(t, c.InitFilterIndex(context.Background(), "/index/"+indexbuild.FilterIndexName))

	// Then: queries work end to end
	resp, err := c.Search(context.Background(), protocol.SearchRequest{Query: "goroutines"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "/articles/go", resp.Results[0].URL)

	res, err := c.FilterArticles(context.Background(), protocol.FilterRequest{Tags: []string{"rust"}})
	require.NoError(t, err)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "rust", res.Articles[0].ID)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, NewRouter(Options{Dir: t.TempDir()}), time.Second, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
