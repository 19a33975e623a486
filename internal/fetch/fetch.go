// Package fetch retrieves index blobs for the engine host.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

// DefaultMaxBytes caps index blob size.
const DefaultMaxBytes int64 = 64 << 20

// Fetcher retrieves the bytes behind an index URL.
type Fetcher interface {
	Fetch(ctx context.Context, indexURL string) ([]byte, error)
}

// Options configures NewFetcher.
type Options struct {
	// BaseURL resolves relative index URLs such as "/search-index.bin".
	// Without it, relative URLs are read from disk.
	BaseURL string

	// Timeout bounds one HTTP fetch. Zero means no timeout.
	Timeout time.Duration

	// MaxBytes caps the blob size. Zero means DefaultMaxBytes.
	MaxBytes int64

	// Client overrides the HTTP client.
	Client *http.Client
}

// Multi dispatches by scheme: http(s) to HTTP, file:// and bare paths to
// the filesystem.
type Multi struct {
	base *url.URL
	http *HTTPFetcher
	file *FileFetcher
}

// NewFetcher builds a Multi fetcher.
func NewFetcher(opts Options) (*Multi, error) {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var base *url.URL
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil || u.Scheme == "" {
			return nil, pierrors.ConfigError(fmt.Sprintf("invalid index base URL %q", opts.BaseURL), err)
		}
		base = u
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Multi{
		base: base,
		http: &HTTPFetcher{Client: client, MaxBytes: maxBytes},
		file: &FileFetcher{MaxBytes: maxBytes},
	}, nil
}

// Fetch implements Fetcher.
func (m *Multi) Fetch(ctx context.Context, indexURL string) ([]byte, error) {
	u, err := url.Parse(indexURL)
	if err != nil {
		return nil, pierrors.FetchFailed(fmt.Sprintf("invalid index URL %q", indexURL), err)
	}

	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return m.http.Fetch(ctx, indexURL)
	case u.Scheme == "file":
		return m.file.Fetch(ctx, u.Path)
	case u.Scheme == "" && m.base != nil:
		return m.http.Fetch(ctx, m.base.ResolveReference(u).String())
	case u.Scheme == "":
		return m.file.Fetch(ctx, indexURL)
	default:
		return nil, pierrors.FetchFailed(fmt.Sprintf("unsupported index URL scheme %q", u.Scheme), nil)
	}
}

// HTTPFetcher fetches blobs over HTTP, bypassing caches.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// Fetch sends a no-cache GET and returns the body of a 2xx response.
func (f *HTTPFetcher) Fetch(ctx context.Context, indexURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, pierrors.FetchFailed(fmt.Sprintf("build request for %s", indexURL), err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, pierrors.FetchFailed(fmt.Sprintf("fetch %s: %v", indexURL, err), err).
			WithDetail("url", indexURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, pierrors.FetchFailed(fmt.Sprintf("fetch %s: %s", indexURL, statusText(resp)), nil).
			WithDetail("url", indexURL).
			WithDetail("status", fmt.Sprint(resp.StatusCode))
	}

	return readCapped(resp.Body, f.maxBytes(), indexURL)
}

func (f *HTTPFetcher) maxBytes() int64 {
	if f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}

// statusText renders "404 Not Found" even for servers that send a bare code.
func statusText(resp *http.Response) string {
	if resp.Status != "" && strings.Contains(resp.Status, " ") {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// FileFetcher reads blobs from disk.
type FileFetcher struct {
	MaxBytes int64
}

// Fetch reads the file at path.
func (f *FileFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, pierrors.New(pierrors.ErrCodeFetchFailed, fmt.Sprintf("index file %s not found", path), err).
				WithSuggestion("run 'postindex build' to create the index files")
		}
		return nil, pierrors.FetchFailed(fmt.Sprintf("open %s", path), err)
	}
	defer file.Close()

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return readCapped(file, maxBytes, path)
}

func readCapped(r io.Reader, maxBytes int64, src string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, pierrors.FetchFailed(fmt.Sprintf("read %s", src), err)
	}
	if int64(len(data)) > maxBytes {
		return nil, pierrors.FetchFailed(fmt.Sprintf("index %s exceeds %d bytes", src, maxBytes), nil)
	}
	return data, nil
}
