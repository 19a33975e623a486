package mcp

import (
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query"`
	Type     string `json:"type,omitempty" jsonschema:"fields to search: all (default), title, content, tags"`
	Page     int    `json:"page,omitempty" jsonschema:"1-based result page, default 1"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"results per page, default 10, max 100"`
}

// SuggestInput defines the input schema for the suggest tool.
type SuggestInput struct {
	Prefix string `json:"prefix" jsonschema:"the partial title typed so far"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of suggestions, default 10"`
}

// FilterInput defines the input schema for the filter_articles tool.
type FilterInput struct {
	Tags  []string `json:"tags,omitempty" jsonschema:"articles must carry every listed tag"`
	Date  string   `json:"date,omitempty" jsonschema:"date prefix such as 2024 or 2024-05"`
	Sort  string   `json:"sort,omitempty" jsonschema:"date_desc (default), date_asc, title_asc or title_desc"`
	Page  int      `json:"page,omitempty" jsonschema:"1-based page, default 1"`
	Limit int      `json:"limit,omitempty" jsonschema:"articles per page, default 12, max 100"`
}

// ListTagsInput is empty; list_tags takes no arguments.
type ListTagsInput struct{}

// SearchOutput defines the output schema for search and suggest.
type SearchOutput struct {
	Query      string            `json:"query" jsonschema:"the query as executed"`
	Results    []SearchHitOutput `json:"results" jsonschema:"ranked matches"`
	Total      int               `json:"total" jsonschema:"number of matches across all pages"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// SearchHitOutput is one ranked article.
type SearchHitOutput struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	URL     string   `json:"url" jsonschema:"site-relative article URL"`
	Date    string   `json:"date,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Summary string   `json:"summary,omitempty"`
	Score   float64  `json:"score" jsonschema:"relevance score, higher is better"`
}

// FilterOutput defines the output schema for filter_articles.
type FilterOutput struct {
	Articles   []ArticleOutput `json:"articles"`
	Total      int             `json:"total" jsonschema:"number of matching articles across all pages"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
	HasMore    bool            `json:"has_more" jsonschema:"true if a later page exists"`
}

// ArticleOutput is an article without its body.
type ArticleOutput struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Date    string   `json:"date,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// ListTagsOutput defines the output schema for list_tags.
type ListTagsOutput struct {
	Tags []string `json:"tags" jsonschema:"every tag, sorted alphabetically"`
}

func toSearchOutput(resp *protocol.SearchResponse) SearchOutput {
	out := SearchOutput{
		Query:      resp.Query,
		Results:    make([]SearchHitOutput, 0, len(resp.Results)),
		Total:      resp.Total,
		Page:       resp.Page,
		TotalPages: resp.TotalPages,
	}
	for _, h := range resp.Results {
		out.Results = append(out.Results, SearchHitOutput{
			ID:      h.ID,
			Title:   h.Title,
			URL:     h.URL,
			Date:    h.Date,
			Tags:    h.Tags,
			Summary: h.Summary,
			Score:   h.Score,
		})
	}
	return out
}

func toFilterOutput(res *protocol.FilterResult) FilterOutput {
	out := FilterOutput{
		Articles:   make([]ArticleOutput, 0, len(res.Articles)),
		Total:      res.Total,
		Page:       res.Page,
		TotalPages: res.TotalPages,
		HasMore:    res.HasMore,
	}
	for _, a := range res.Articles {
		out.Articles = append(out.Articles, ArticleOutput{
			ID:      a.ID,
			Title:   a.Title,
			URL:     a.URL,
			Date:    a.Date,
			Tags:    a.Tags,
			Summary: a.Summary,
		})
	}
	return out
}
