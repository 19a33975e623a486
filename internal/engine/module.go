// Package engine provides the search and filter engines hosted behind the
// worker boundary, and the providers that load them.
//
// An engine module is an export table: a struct of function fields, one
// per entrypoint. A nil field is a missing export. Search results cross
// the module boundary as JSON strings; filter results are structured.
package engine

import (
	"context"

	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Export names, shared by the builtin and native providers.
const (
	ExportInitSearchIndex = "init_search_index"
	ExportSearchCached    = "search_cached"
	ExportFilterInit      = "article_filter_init"
	ExportFilterGetTags   = "article_filter_get_all_tags"
	ExportFilterArticles  = "article_filter_filter_articles"
)

// SearchModule is the export table of a search engine module.
type SearchModule struct {
	// Name identifies the module in errors and logs.
	Name string

	// InitSearchIndex builds the engine from an index blob.
	InitSearchIndex func(data []byte) error

	// SearchCached runs a JSON-encoded SearchRequest and returns a
	// JSON-encoded SearchResponse.
	SearchCached func(requestJSON string) (string, error)

	// Close releases the engine. Optional.
	Close func() error
}

// MissingExport returns the name of the first required export that is nil,
// or "" when the module is complete.
func (m *SearchModule) MissingExport() string {
	switch {
	case m.InitSearchIndex == nil:
		return ExportInitSearchIndex
	case m.SearchCached == nil:
		return ExportSearchCached
	}
	return ""
}

// FilterModule is the export table of a filter engine module.
type FilterModule struct {
	Name string

	// Init builds the engine from an index blob.
	Init func(data []byte) error

	// GetAllTags returns every tag. The list may be nil.
	GetAllTags func() ([]string, error)

	// FilterArticles runs a JSON-encoded FilterRequest.
	FilterArticles func(requestJSON string) (*protocol.FilterResult, error)

	Close func() error
}

// MissingExport returns the name of the first required export that is nil,
// or "" when the module is complete.
func (m *FilterModule) MissingExport() string {
	switch {
	case m.Init == nil:
		return ExportFilterInit
	case m.GetAllTags == nil:
		return ExportFilterGetTags
	case m.FilterArticles == nil:
		return ExportFilterArticles
	}
	return ""
}

// Provider loads engine modules. Each call returns a fresh, uninitialized
// module.
type Provider interface {
	LoadSearch(ctx context.Context) (*SearchModule, error)
	LoadFilter(ctx context.Context) (*FilterModule, error)
}
