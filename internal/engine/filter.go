package engine

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/indexfile"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// FilterEngine selects articles by tag and date. Each tag owns a roaring
// bitmap of article positions; a multi-tag filter is their intersection.
type FilterEngine struct {
	mu       sync.RWMutex
	ready    bool
	articles []protocol.Article
	all      *roaring.Bitmap
	postings map[string]*roaring.Bitmap // lowercased tag -> positions
	tags     []string                   // display spelling, sorted
}

// NewFilterEngine creates an uninitialized engine.
func NewFilterEngine() *FilterEngine {
	return &FilterEngine{}
}

// Init builds the posting lists from a filter index blob.
func (e *FilterEngine) Init(data []byte) error {
	idx, err := indexfile.DecodeKind(data, indexfile.KindFilter)
	if err != nil {
		return err
	}

	articles := make([]protocol.Article, len(idx.Articles))
	all := roaring.New()
	postings := make(map[string]*roaring.Bitmap)
	display := make(map[string]string)

	for i, a := range idx.Articles {
		a.Content = ""
		articles[i] = a
		pos := uint32(i)
		all.Add(pos)

		for _, tag := range a.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			bm, ok := postings[key]
			if !ok {
				bm = roaring.New()
				postings[key] = bm
				display[key] = tag
			}
			bm.Add(pos)
		}
	}

	tags := make([]string, 0, len(display))
	for _, t := range display {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		li, lj := strings.ToLower(tags[i]), strings.ToLower(tags[j])
		if li != lj {
			return li < lj
		}
		return tags[i] < tags[j]
	})

	e.mu.Lock()
	e.articles = articles
	e.all = all
	e.postings = postings
	e.tags = tags
	e.ready = true
	e.mu.Unlock()
	return nil
}

// GetAllTags returns every tag sorted alphabetically, or nil before Init.
func (e *FilterEngine) GetAllTags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil
	}
	return slices.Clone(e.tags)
}

// FilterArticles decodes requestJSON and runs Filter.
func (e *FilterEngine) FilterArticles(requestJSON string) (*protocol.FilterResult, error) {
	var req protocol.FilterRequest
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return nil, pierrors.QueryFailed(fmt.Sprintf("invalid filter request: %v", err), err)
	}
	return e.Filter(req)
}

// Filter returns one page of articles carrying every requested tag and
// whose date starts with the requested date prefix.
func (e *FilterEngine) Filter(req protocol.FilterRequest) (*protocol.FilterResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, pierrors.NotInitialized("filter")
	}

	less, err := sortFunc(req.Sort)
	if err != nil {
		return nil, err
	}

	matched := e.all.Clone()
	for _, tag := range req.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		bm, ok := e.postings[strings.ToLower(tag)]
		if !ok {
			matched.Clear()
			break
		}
		matched.And(bm)
	}

	selected := make([]protocol.Article, 0, matched.GetCardinality())
	it := matched.Iterator()
	for it.HasNext() {
		a := e.articles[it.Next()]
		if req.Date != "" && !strings.HasPrefix(a.Date, req.Date) {
			continue
		}
		selected = append(selected, a)
	}
	sort.SliceStable(selected, func(i, j int) bool { return less(selected[i], selected[j]) })

	page := protocol.ClampPage(req.Page)
	limit := protocol.ClampSize(req.Limit, protocol.DefaultFilterLimit)
	total := len(selected)

	start := protocol.PageOffset(page, limit, total)
	end := min(start+limit, total)

	out := make([]protocol.Article, 0, end-start)
	for _, a := range selected[start:end] {
		a.Tags = nonNilTags(a.Tags)
		out = append(out, a)
	}

	return &protocol.FilterResult{
		Articles:   out,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: protocol.TotalPages(total, limit),
		HasMore:    end < total,
	}, nil
}

func sortFunc(order string) (func(a, b protocol.Article) bool, error) {
	switch order {
	case protocol.SortDateDesc, "":
		return func(a, b protocol.Article) bool {
			if a.Date != b.Date {
				return a.Date > b.Date
			}
			return a.ID < b.ID
		}, nil
	case protocol.SortDateAsc:
		return func(a, b protocol.Article) bool {
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.ID < b.ID
		}, nil
	case protocol.SortTitleAsc:
		return func(a, b protocol.Article) bool {
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		}, nil
	case protocol.SortTitleDesc:
		return func(a, b protocol.Article) bool {
			return strings.ToLower(a.Title) > strings.ToLower(b.Title)
		}, nil
	default:
		return nil, pierrors.QueryFailed(fmt.Sprintf("unknown sort %q", order), nil).
			WithDetail("sort", order)
	}
}
