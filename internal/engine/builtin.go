package engine

import "context"

// BuiltinProvider serves the pure-Go engines of this package.
type BuiltinProvider struct {
	// Backend selects the text index behind search ("bleve" or "sqlite").
	Backend string

	// CacheSize bounds the search query cache.
	CacheSize int
}

// NewBuiltinProvider creates a provider with the given search backend.
func NewBuiltinProvider(backend string, cacheSize int) *BuiltinProvider {
	return &BuiltinProvider{Backend: backend, CacheSize: cacheSize}
}

// LoadSearch returns a fresh search module.
func (p *BuiltinProvider) LoadSearch(ctx context.Context) (*SearchModule, error) {
	e := NewSearchEngine(p.Backend, p.CacheSize)
	return &SearchModule{
		Name:            "builtin search module",
		InitSearchIndex: e.Init,
		SearchCached:    e.SearchCached,
		Close:           e.Close,
	}, nil
}

// LoadFilter returns a fresh filter module.
func (p *BuiltinProvider) LoadFilter(ctx context.Context) (*FilterModule, error) {
	e := NewFilterEngine()
	return &FilterModule{
		Name:           "builtin filter module",
		Init:           e.Init,
		GetAllTags:     func() ([]string, error) { return e.GetAllTags(), nil },
		FilterArticles: e.FilterArticles,
	}, nil
}

var _ Provider = (*BuiltinProvider)(nil)
