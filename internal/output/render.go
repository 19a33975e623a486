package output

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/postindex/internal/protocol"
)

// SearchResults prints one page of search hits.
func (w *Writer) SearchResults(resp *protocol.SearchResponse) {
	if resp == nil || len(resp.Results) == 0 {
		w.Warningf("No results for %q", queryOf(resp))
		return
	}

	w.Header(fmt.Sprintf("%d result(s) for %q, page %d of %d",
		resp.Total, resp.Query, resp.Page, max(resp.TotalPages, 1)))
	for i, hit := range resp.Results {
		n := (resp.Page-1)*resp.PageSize + i + 1
		_, _ = fmt.Fprintf(w.out, "%3d. %s %s\n", n, w.styles.Title.Render(hit.Title),
			w.styles.Dim.Render(fmt.Sprintf("(%.2f)", hit.Score)))
		w.articleMeta(hit.URL, hit.Date, hit.Tags)
		if hit.Summary != "" {
			_, _ = fmt.Fprintf(w.out, "     %s\n", hit.Summary)
		}
	}
}

// Suggestions prints suggest hits as a compact title list.
func (w *Writer) Suggestions(resp *protocol.SearchResponse) {
	if resp == nil || len(resp.Results) == 0 {
		w.Warningf("No suggestions for %q", queryOf(resp))
		return
	}
	for _, hit := range resp.Results {
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", w.styles.Title.Render(hit.Title), w.styles.Dim.Render(hit.URL))
	}
}

// Articles prints one page of filtered articles.
func (w *Writer) Articles(res *protocol.FilterResult) {
	if res == nil || len(res.Articles) == 0 {
		w.Warning("No matching articles")
		return
	}

	w.Header(fmt.Sprintf("%d article(s), page %d of %d", res.Total, res.Page, max(res.TotalPages, 1)))
	for _, a := range res.Articles {
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Dim.Render(a.Date), w.styles.Title.Render(a.Title))
		w.articleMeta(a.URL, "", a.Tags)
	}
	if res.HasMore {
		_, _ = fmt.Fprintln(w.out, w.styles.Label.Render(fmt.Sprintf("  more: --page %d", res.Page+1)))
	}
}

// Tags prints the tag list, one per line.
func (w *Writer) Tags(tags []string) {
	if len(tags) == 0 {
		w.Warning("No tags")
		return
	}
	for _, tag := range tags {
		_, _ = fmt.Fprintln(w.out, w.styles.Tag.Render(tag))
	}
}

func (w *Writer) articleMeta(url, date string, tags []string) {
	parts := []string{url}
	if date != "" {
		parts = append(parts, date)
	}
	if len(tags) > 0 {
		styled := make([]string, len(tags))
		for i, t := range tags {
			styled[i] = w.styles.Tag.Render("#" + t)
		}
		parts = append(parts, strings.Join(styled, " "))
	}
	_, _ = fmt.Fprintf(w.out, "     %s\n", strings.Join(parts, "  "))
}

func queryOf(resp *protocol.SearchResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Query
}
