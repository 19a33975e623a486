package fetch

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

func TestHTTPFetcher_SendsNoCacheHeaders(t *testing.T) {
	// Given: a server recording request headers
	var gotCache, gotPragma string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCache = r.Header.Get("Cache-Control")
		gotPragma = r.Header.Get("Pragma")
		_, _ = w.Write([]byte("blob"))
	}))
	defer srv.Close()

	f, err := NewFetcher(Options{})
	require.NoError(t, err)

	// When: fetching
	data, err := f.Fetch(t.Context(), srv.URL+"/search-index.bin")

	// Then: caches are bypassed
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)
	assert.Equal(t, "no-cache", gotCache)
	assert.Equal(t, "no-cache", gotPragma)
}

func TestHTTPFetcher_Non2xxIsFetchFailedWithStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, err := NewFetcher(Options{})
	require.NoError(t, err)

	_, err = f.Fetch(t.Context(), srv.URL+"/missing.bin")

	require.Error(t, err)
	assert.Equal(t, pierrors.ErrCodeFetchFailed, pierrors.GetCode(err))
	assert.Contains(t, err.Error(), "404 Not Found")
	assert.True(t, pierrors.IsRetryable(err))
}

func TestHTTPFetcher_TransportErrorIsFetchFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f, err := NewFetcher(Options{})
	require.NoError(t, err)

	_, err = f.Fetch(t.Context(), url+"/x.bin")
	assert.Equal(t, pierrors.ErrCodeFetchFailed, pierrors.GetCode(err))
}

func TestHTTPFetcher_EnforcesMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f, err := NewFetcher(Options{MaxBytes: 10})
	require.NoError(t, err)

	_, err = f.Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 10 bytes")
}

func TestMulti_ResolvesRelativeURLsAgainstBase(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, err := NewFetcher(Options{BaseURL: srv.URL + "/index/"})
	require.NoError(t, err)

	_, err = f.Fetch(t.Context(), "/search-index.bin")
	require.NoError(t, err)
	assert.Equal(t, "/search-index.bin", gotPath)

	_, err = f.Fetch(t.Context(), "filter-index.bin")
	require.NoError(t, err)
	assert.Equal(t, "/index/filter-index.bin", gotPath)
}

func TestMulti_ReadsFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "search-index.bin")
	require.NoError(t, os.WriteFile(path, []byte("disk"), 0o644))

	f, err := NewFetcher(Options{})
	require.NoError(t, err)

	data, err := f.Fetch(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, []byte("disk"), data)

	data, err = f.Fetch(t.Context(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, []byte("disk"), data)

	_, err = f.Fetch(t.Context(), filepath.Join(dir, "missing.bin"))
	assert.Equal(t, pierrors.ErrCodeFetchFailed, pierrors.GetCode(err))
}

func TestMulti_RejectsUnknownScheme(t *testing.T) {
	f, err := NewFetcher(Options{})
	require.NoError(t, err)

	_, err = f.Fetch(t.Context(), "ftp://example.com/x.bin")
	assert.Equal(t, pierrors.ErrCodeFetchFailed, pierrors.GetCode(err))
}

func TestNewFetcher_InvalidBaseURL(t *testing.T) {
	_, err := NewFetcher(Options{BaseURL: "not a url"})
	assert.Equal(t, pierrors.ErrCodeConfigInvalid, pierrors.GetCode(err))
}
