package protocol

import "encoding/json"

// Search types accepted in SearchRequest.SearchType.
const (
	SearchTypeAll     = "all"
	SearchTypeTitle   = "title"
	SearchTypeContent = "content"
	SearchTypeTags    = "tags"
	SearchTypeSuggest = "suggest"
)

// Sort orders accepted in FilterRequest.Sort.
const (
	SortDateDesc  = "date_desc"
	SortDateAsc   = "date_asc"
	SortTitleAsc  = "title_asc"
	SortTitleDesc = "title_desc"
)

// Paging defaults and caps.
const (
	DefaultPageSize    = 10
	DefaultFilterLimit = 12
	MaxPageSize        = 100
)

// Article is one post as carried in index blobs and filter results.
// Content is only present in search index blobs.
type Article struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Date    string   `json:"date"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
	URL     string   `json:"url"`
	Content string   `json:"content,omitempty"`
}

// SearchRequest is an opaque query forwarded to the search engine.
type SearchRequest struct {
	Query      string `json:"query"`
	SearchType string `json:"search_type,omitempty"`
	Page       int    `json:"page,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Date    string   `json:"date"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
	Score   float64  `json:"score"`
}

// SearchResponse is the decoded result of a search or suggest query.
type SearchResponse struct {
	Query      string      `json:"query"`
	SearchType string      `json:"search_type"`
	Results    []SearchHit `json:"results"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`

	// Raw is the engine's response document exactly as returned, including
	// any fields the struct does not model. It is not re-encoded.
	Raw json.RawMessage `json:"-"`
}

// FilterRequest selects articles by tags and date.
type FilterRequest struct {
	Tags  []string `json:"tags,omitempty"`
	Date  string   `json:"date,omitempty"`
	Sort  string   `json:"sort,omitempty"`
	Page  int      `json:"page,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// FilterResult is one page of filtered articles.
type FilterResult struct {
	Articles   []Article `json:"articles"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"total_pages"`
	HasMore    bool      `json:"has_more"`
}

// TotalPages returns the page count for total items at size per page.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PageOffset returns the index of the first item on a 1-based page of
// size items, capped at total. It never overflows for large pages.
func PageOffset(page, size, total int) int {
	if page <= 1 || size <= 0 || total <= 0 {
		return 0
	}
	if page-1 > total/size {
		return total
	}
	return min((page-1)*size, total)
}

// ClampPage normalizes a 1-based page number.
func ClampPage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

// ClampSize applies the default and the cap to a page size.
func ClampSize(size, def int) int {
	if size <= 0 {
		return def
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}
