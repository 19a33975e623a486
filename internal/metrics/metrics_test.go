package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRoutePatternAndStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/index/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("blob"))
	})
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/index/search-index.bin", "/index/filter-index.bin"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))

	// Both blob requests share one label set
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/index/{name}", "200")), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/missing", "404")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpResponseBytes.WithLabelValues("/index/{name}")), 8.0)
}

func TestRegisterHostMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterHostMetrics()
		RegisterHostMetrics()
	})

	HostRequestsTotal.WithLabelValues("search", "ok").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(HostRequestsTotal.WithLabelValues("search", "ok")), 1.0)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unknown", normalizePath(""))
	assert.Equal(t, "/healthz", normalizePath("/healthz"))
}
