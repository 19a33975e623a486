// Package host runs the index engines on the far side of a worker
// connection.
//
// A Host owns two slots, "search" and "filter". Each slot's engine is
// fetched and constructed on first use and reused afterwards. Requests are
// newline-delimited JSON frames (see package protocol); each is handled on
// its own goroutine, so responses may complete out of order.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/postindex/internal/engine"
	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/fetch"
	"github.com/Aman-CERP/postindex/internal/metrics"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Capability names.
const (
	CapabilitySearch = "search"
	CapabilityFilter = "filter"
)

// Options configures a Host.
type Options struct {
	Fetcher  fetch.Fetcher
	Provider engine.Provider
	Logger   *slog.Logger
}

// Host is the index engine host for one worker connection.
type Host struct {
	fetcher  fetch.Fetcher
	provider engine.Provider
	logger   *slog.Logger

	search slot[*engine.SearchModule]
	filter slot[*engine.FilterModule]
}

// New creates a Host. A nil Provider selects the builtin engines with the
// default backend.
func New(opts Options) *Host {
	provider := opts.Provider
	if provider == nil {
		provider = engine.NewBuiltinProvider("", 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		fetcher:  opts.Fetcher,
		provider: provider,
		logger:   logger,
		search:   slot[*engine.SearchModule]{capability: CapabilitySearch},
		filter:   slot[*engine.FilterModule]{capability: CapabilityFilter},
	}
}

// SearchReady reports whether the search engine is ready.
func (h *Host) SearchReady() bool { return h.search.isReady() }

// FilterReady reports whether the filter engine is ready.
func (h *Host) FilterReady() bool { return h.filter.isReady() }

// Handle processes one request and returns its response. Panics are not
// recovered here; Serve turns them into fatal frames.
func (h *Host) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	start := time.Now()
	resp := h.dispatch(ctx, req)

	status := "ok"
	if resp.Type == protocol.TypeError {
		status = resp.Error.Code
		if status == "" {
			status = pierrors.ErrCodeQueryFailed
		}
		h.logger.Debug("host_request_failed",
			slog.Uint64("id", req.ID),
			slog.String("type", string(req.Type)),
			slog.String("error", resp.Error.Message),
			slog.String("error_code", status))
	}
	metrics.HostRequestsTotal.WithLabelValues(string(req.Type), status).Inc()
	metrics.HostRequestDuration.WithLabelValues(string(req.Type)).Observe(time.Since(start).Seconds())

	return resp
}

func (h *Host) dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.TypeInitSearch:
		var p protocol.InitPayload
		if err := req.DecodePayload(&p); err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		if _, err := h.search.ensureReady(ctx, p.IndexURL, h.loadSearch); err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		return result(req.ID, protocol.InitResult{Ready: true})

	case protocol.TypeInitFilter:
		var p protocol.InitPayload
		if err := req.DecodePayload(&p); err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		if _, err := h.filter.ensureReady(ctx, p.IndexURL, h.loadFilter); err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		return result(req.ID, protocol.InitResult{Ready: true})

	case protocol.TypeSearch, protocol.TypeSuggest:
		var p protocol.SearchPayload
		if err := req.DecodePayload(&p); err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		return h.handleSearch(ctx, req.ID, p.Request)

	case protocol.TypeFilter:
		var p protocol.FilterPayload
		if err := req.DecodePayload(&p); err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		return h.handleFilter(ctx, req.ID, p.Request)

	case protocol.TypeGetTags:
		m, err := h.filter.ensureReady(ctx, "", h.loadFilter)
		if err != nil {
			return protocol.NewErrorResponse(req.ID, err)
		}
		tags, err := m.GetAllTags()
		if err != nil {
			return protocol.NewErrorResponse(req.ID, asQueryError(err))
		}
		if tags == nil {
			tags = []string{}
		}
		return result(req.ID, tags)

	default:
		return protocol.NewErrorResponse(req.ID,
			pierrors.InvalidRequest(fmt.Sprintf("unknown message type: %s", req.Type)))
	}
}

func (h *Host) handleSearch(ctx context.Context, id uint64, sr protocol.SearchRequest) protocol.Response {
	m, err := h.search.ensureReady(ctx, "", h.loadSearch)
	if err != nil {
		return protocol.NewErrorResponse(id, err)
	}

	reqJSON, err := json.Marshal(sr)
	if err != nil {
		return protocol.NewErrorResponse(id, pierrors.InvalidRequest(fmt.Sprintf("encode search request: %v", err)))
	}

	out, err := m.SearchCached(string(reqJSON))
	if err != nil {
		return protocol.NewErrorResponse(id, asQueryError(err))
	}
	if !json.Valid([]byte(out)) {
		return protocol.NewErrorResponse(id, pierrors.QueryFailed("search engine returned invalid JSON", nil))
	}
	return protocol.NewRawResult(id, json.RawMessage(out))
}

func (h *Host) handleFilter(ctx context.Context, id uint64, fr protocol.FilterRequest) protocol.Response {
	m, err := h.filter.ensureReady(ctx, "", h.loadFilter)
	if err != nil {
		return protocol.NewErrorResponse(id, err)
	}

	reqJSON, err := json.Marshal(fr)
	if err != nil {
		return protocol.NewErrorResponse(id, pierrors.InvalidRequest(fmt.Sprintf("encode filter request: %v", err)))
	}

	res, err := m.FilterArticles(string(reqJSON))
	if err != nil {
		return protocol.NewErrorResponse(id, asQueryError(err))
	}
	return result(id, res)
}

func (h *Host) loadSearch(ctx context.Context, indexURL string) (*engine.SearchModule, error) {
	m, err := h.provider.LoadSearch(ctx)
	if err != nil {
		return nil, h.loadFailed(CapabilitySearch, indexURL, err)
	}
	if missing := m.MissingExport(); missing != "" {
		return nil, h.loadFailed(CapabilitySearch, indexURL, pierrors.EngineMissingExport(m.Name, missing))
	}

	data, err := h.fetchIndex(ctx, CapabilitySearch, indexURL)
	if err != nil {
		return nil, h.loadFailed(CapabilitySearch, indexURL, err)
	}
	if err := m.InitSearchIndex(data); err != nil {
		return nil, h.loadFailed(CapabilitySearch, indexURL, asCorrupt(CapabilitySearch, err))
	}

	h.loadReady(CapabilitySearch, indexURL, len(data))
	return m, nil
}

func (h *Host) loadFilter(ctx context.Context, indexURL string) (*engine.FilterModule, error) {
	m, err := h.provider.LoadFilter(ctx)
	if err != nil {
		return nil, h.loadFailed(CapabilityFilter, indexURL, err)
	}
	if missing := m.MissingExport(); missing != "" {
		return nil, h.loadFailed(CapabilityFilter, indexURL, pierrors.EngineMissingExport(m.Name, missing))
	}

	data, err := h.fetchIndex(ctx, CapabilityFilter, indexURL)
	if err != nil {
		return nil, h.loadFailed(CapabilityFilter, indexURL, err)
	}
	if err := m.Init(data); err != nil {
		return nil, h.loadFailed(CapabilityFilter, indexURL, asCorrupt(CapabilityFilter, err))
	}

	h.loadReady(CapabilityFilter, indexURL, len(data))
	return m, nil
}

func (h *Host) fetchIndex(ctx context.Context, capability, indexURL string) ([]byte, error) {
	if h.fetcher == nil {
		return nil, pierrors.ConfigError("no index fetcher configured", nil)
	}

	h.logger.Info("index_load_started",
		slog.String("capability", capability),
		slog.String("url", indexURL))

	data, err := h.fetcher.Fetch(ctx, indexURL)
	if err != nil {
		msg := err.Error()
		if ie, ok := pierrors.As(err); ok {
			msg = ie.Message
		}
		return nil, pierrors.FetchFailed(fmt.Sprintf("failed to fetch %s index: %s", capability, msg), err).
			WithDetail("url", indexURL)
	}
	metrics.IndexFetchBytes.WithLabelValues(capability).Observe(float64(len(data)))
	return data, nil
}

func (h *Host) loadReady(capability, indexURL string, size int) {
	metrics.IndexLoadsTotal.WithLabelValues(capability, "ok").Inc()
	metrics.IndexReady.WithLabelValues(capability).Set(1)
	h.logger.Info("index_ready",
		slog.String("capability", capability),
		slog.String("url", indexURL),
		slog.Int("bytes", size))
}

func (h *Host) loadFailed(capability, indexURL string, err error) error {
	code := pierrors.GetCode(err)
	if code == "" {
		code = pierrors.ErrCodeInternal
	}
	metrics.IndexLoadsTotal.WithLabelValues(capability, code).Inc()

	attrs := append([]slog.Attr{
		slog.String("capability", capability),
		slog.String("url", indexURL),
	}, pierrors.LogAttrs(err)...)
	h.logger.LogAttrs(context.Background(), slog.LevelWarn, "index_load_failed", attrs...)
	return err
}

// Close releases loaded engines.
func (h *Host) Close() error {
	if m, ok := h.search.current(); ok && m.Close != nil {
		_ = m.Close()
	}
	if m, ok := h.filter.current(); ok && m.Close != nil {
		_ = m.Close()
	}
	metrics.IndexReady.WithLabelValues(CapabilitySearch).Set(0)
	metrics.IndexReady.WithLabelValues(CapabilityFilter).Set(0)
	return nil
}

func result(id uint64, payload any) protocol.Response {
	resp, err := protocol.NewResult(id, payload)
	if err != nil {
		return protocol.NewErrorResponse(id, pierrors.InternalError("encode result", err))
	}
	return resp
}

func asQueryError(err error) error {
	if _, ok := pierrors.As(err); ok {
		return err
	}
	return pierrors.QueryFailed(err.Error(), err)
}

func asCorrupt(capability string, err error) error {
	if _, ok := pierrors.As(err); ok {
		return err
	}
	return pierrors.IndexCorrupt(fmt.Sprintf("failed to build %s index: %v", capability, err), err)
}
