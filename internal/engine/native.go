package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// NativeProvider loads engines from a shared library exporting the C
// entrypoints below. Absent symbols leave the corresponding module field
// nil, which the host reports as a missing export.
//
//	char *init_search_index(const uint8_t *data, size_t len);  // NULL or error
//	char *search_cached(const char *request_json);             // response JSON
//	char *article_filter_init(const uint8_t *data, size_t len);
//	char *article_filter_get_all_tags(void);                   // JSON array
//	char *article_filter_filter_articles(const char *request_json);
//	void  free_string(char *s);                                // optional
//
// A response JSON object with a top-level "error" string is an error.
//
// The library holds one search engine and one filter engine per process,
// and is not assumed to be thread-safe: every call into it is serialized.
// Modules loaded by different hosts share the process engine when they are
// initialized from the same blob. Initializing from a different blob fails
// while another host still holds the engine.
type NativeProvider struct {
	path    string
	openLib func(path string) (symbols, error)

	once sync.Once
	lib  symbols
	err  error

	mu     sync.Mutex
	search sharedEngine
	filter sharedEngine
}

// symbols resolves library exports. A nil function is a missing export.
type symbols interface {
	bytesFunc(name string) func([]byte) string
	stringFunc(name string) func(string) string
	voidFunc(name string) func() string
}

// sharedEngine is the process engine of one capability.
type sharedEngine struct {
	digest [sha256.Size]byte
	refs   int
}

// NewNativeProvider creates a provider for the library at path. The
// library is opened on first load and stays open.
func NewNativeProvider(path string) *NativeProvider {
	return newNativeProvider(path, func(path string) (symbols, error) {
		lib, err := openNativeLib(path)
		if err != nil {
			return nil, err
		}
		return lib, nil
	})
}

func newNativeProvider(path string, open func(string) (symbols, error)) *NativeProvider {
	return &NativeProvider{path: path, openLib: open}
}

func (p *NativeProvider) open() (symbols, error) {
	p.once.Do(func() {
		p.lib, p.err = p.openLib(p.path)
	})
	return p.lib, p.err
}

// hold is one module's claim on a shared engine.
type hold struct {
	p      *NativeProvider
	engine *sharedEngine
	name   string
	held   bool
}

// initEngine builds the shared engine from data, or joins it when it was built
// from the same blob.
func (h *hold) initEngine(data []byte, fn func([]byte) string) error {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()

	h.releaseLocked()
	sum := sha256.Sum256(data)
	if h.engine.refs > 0 {
		if sum != h.engine.digest {
			return pierrors.InternalError(
				fmt.Sprintf("%s already holds a different index for another connection", h.name), nil).
				WithSuggestion("restart the daemon after rebuilding, or use the builtin engines")
		}
		h.engine.refs++
		h.held = true
		return nil
	}
	if msg := fn(data); msg != "" {
		return pierrors.IndexCorrupt(msg, nil)
	}
	h.engine.digest = sum
	h.engine.refs = 1
	h.held = true
	return nil
}

func (h *hold) close() error {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.releaseLocked()
	return nil
}

func (h *hold) releaseLocked() {
	if h.held {
		h.engine.refs--
		h.held = false
	}
}

// call runs fn with the library lock held.
func (p *NativeProvider) call(fn func() string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// LoadSearch binds the search exports.
func (p *NativeProvider) LoadSearch(ctx context.Context) (*SearchModule, error) {
	lib, err := p.open()
	if err != nil {
		return nil, err
	}

	m := &SearchModule{Name: "native search module (" + p.path + ")"}
	h := &hold{p: p, engine: &p.search, name: m.Name}
	m.Close = h.close
	if fn := lib.bytesFunc(ExportInitSearchIndex); fn != nil {
		m.InitSearchIndex = func(data []byte) error { return h.initEngine(data, fn) }
	}
	if fn := lib.stringFunc(ExportSearchCached); fn != nil {
		m.SearchCached = func(requestJSON string) (string, error) {
			out := p.call(func() string { return fn(requestJSON) })
			if err := nativeError(out); err != nil {
				return "", err
			}
			return out, nil
		}
	}
	return m, nil
}

// LoadFilter binds the filter exports.
func (p *NativeProvider) LoadFilter(ctx context.Context) (*FilterModule, error) {
	lib, err := p.open()
	if err != nil {
		return nil, err
	}

	m := &FilterModule{Name: "native filter module (" + p.path + ")"}
	h := &hold{p: p, engine: &p.filter, name: m.Name}
	m.Close = h.close
	if fn := lib.bytesFunc(ExportFilterInit); fn != nil {
		m.Init = func(data []byte) error { return h.initEngine(data, fn) }
	}
	if fn := lib.voidFunc(ExportFilterGetTags); fn != nil {
		m.GetAllTags = func() ([]string, error) {
			out := p.call(fn)
			if err := nativeError(out); err != nil {
				return nil, err
			}
			var tags []string
			if err := json.Unmarshal([]byte(out), &tags); err != nil {
				return nil, pierrors.QueryFailed(fmt.Sprintf("decode native tag list: %v", err), err)
			}
			return tags, nil
		}
	}
	if fn := lib.stringFunc(ExportFilterArticles); fn != nil {
		m.FilterArticles = func(requestJSON string) (*protocol.FilterResult, error) {
			out := p.call(func() string { return fn(requestJSON) })
			if err := nativeError(out); err != nil {
				return nil, err
			}
			var res protocol.FilterResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				return nil, pierrors.QueryFailed(fmt.Sprintf("decode native filter result: %v", err), err)
			}
			return &res, nil
		}
	}
	return m, nil
}

// nativeError extracts {"error": "..."} from a native response.
func nativeError(out string) error {
	if out == "" {
		return pierrors.QueryFailed("native engine returned no result", nil)
	}
	var envelope struct {
		Error *string `json:"error"`
	}
	if json.Unmarshal([]byte(out), &envelope) == nil && envelope.Error != nil {
		return pierrors.QueryFailed(*envelope.Error, nil)
	}
	return nil
}

var _ Provider = (*NativeProvider)(nil)
