// Package indexserver serves built index blobs over HTTP, together with a
// JSON article listing, a health check and Prometheus metrics.
package indexserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/postindex/internal/indexbuild"
	"github.com/Aman-CERP/postindex/internal/indexfile"
	"github.com/Aman-CERP/postindex/internal/metrics"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Options configures the router.
type Options struct {
	// Dir holds search-index.bin and filter-index.bin.
	Dir string
	// AllowOrigin, when set, is sent as Access-Control-Allow-Origin so that
	// browser workers on another origin can fetch the blobs.
	AllowOrigin string
	Logger      *slog.Logger
}

var servable = map[string]bool{
	indexbuild.SearchIndexName: true,
	indexbuild.FilterIndexName: true,
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.RegisterHostMetrics()

	h := &handlers{dir: opts.Dir, logger: logger}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLog(logger))
	r.Use(metrics.Middleware())
	if opts.AllowOrigin != "" {
		r.Use(allowOrigin(opts.AllowOrigin))
	}

	r.Get("/index/{name}", h.serveIndex)
	r.Get("/api/articles", h.listArticles)
	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type handlers struct {
	dir    string
	logger *slog.Logger
}

func (h *handlers) serveIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !servable[name] {
		writeJSONError(w, http.StatusNotFound, "unknown index "+name)
		return
	}

	f, err := os.Open(filepath.Join(h.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			writeJSONError(w, http.StatusNotFound, name+" has not been built")
			return
		}
		h.logger.Error("index_open_failed", slog.String("name", name), slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to open index")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to stat index")
		return
	}

	// Clients must revalidate so a rebuild is picked up immediately
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// articleList is the body of GET /api/articles.
type articleList struct {
	Articles []protocol.Article `json:"articles"`
	Total    int                `json:"total"`
	Success  bool               `json:"success"`
	Error    string             `json:"error,omitempty"`
}

func (h *handlers) listArticles(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(h.dir, indexbuild.FilterIndexName))
	if err == nil {
		var idx *indexfile.Index
		if idx, err = indexfile.DecodeKind(data, indexfile.KindFilter); err == nil {
			articles := idx.Articles
			if articles == nil {
				articles = []protocol.Article{}
			}
			w.Header().Set("Cache-Control", "public, max-age=3600")
			writeJSON(w, http.StatusOK, articleList{Articles: articles, Total: len(articles), Success: true})
			return
		}
	}

	h.logger.Warn("article_list_failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, articleList{
		Articles: []protocol.Article{},
		Error:    "failed to load articles",
	})
}

type healthResponse struct {
	Status  string          `json:"status"`
	Indexes map[string]bool `json:"indexes"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Indexes: make(map[string]bool, len(servable))}
	for name := range servable {
		_, err := os.Stat(filepath.Join(h.dir, name))
		resp.Indexes[name] = err == nil
		if err != nil {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// jsonRecoverer returns JSON instead of a plain text stack trace.
func jsonRecoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("http_panic_recovered",
						slog.Any("panic", rvr),
						slog.String("stack", string(debug.Stack())))
					writeJSONError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLog emits one line per request.
func requestLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("http_request",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("latency", time.Since(start)),
				slog.Int("response_bytes", ww.BytesWritten()))
		})
	}
}

func allowOrigin(origin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully within shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return Serve(ctx, ln, handler, shutdownTimeout, logger)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("index_server_listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown index server: %w", err)
	}
	logger.Info("index_server_stopped")
	return nil
}
