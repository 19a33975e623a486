package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []*Document {
	return []*Document{
		{ID: "go-channels", Title: "Understanding Go channels", Tags: []string{"go", "concurrency"},
			Summary: "A tour of buffered and unbuffered channels.", Content: "Channels connect goroutines."},
		{ID: "rust-ownership", Title: "Rust ownership explained", Tags: []string{"rust"},
			Summary: "Borrowing without tears.", Content: "Ownership rules prevent data races, unlike channels misuse."},
		{ID: "gardening", Title: "Spring gardening notes", Tags: []string{"life"},
			Summary: "Tomatoes again.", Content: "Nothing about programming here."},
		{ID: "cjk-post", Title: "搜索引擎的设计", Tags: []string{"中文"},
			Summary: "倒排索引简介", Content: "全文搜索"},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, idx TextIndex)) {
	for _, backend := range ValidBackends {
		t.Run(string(backend), func(t *testing.T) {
			idx, err := NewTextIndex(string(backend))
			require.NoError(t, err)
			defer idx.Close()

			require.NoError(t, idx.Index(t.Context(), sampleDocs()))
			fn(t, idx)
		})
	}
}

func hitIDs(r *Result) []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.DocID
	}
	return ids
}

func TestTextIndex_AllFieldsRanksTitleMatchFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		// When: searching a term in one title and another article's content
		res, err := idx.Search(t.Context(), Query{Text: "channels", Limit: 10})
		require.NoError(t, err)

		// Then: both match, title match first
		require.Equal(t, 2, res.Total)
		assert.Equal(t, "go-channels", res.Hits[0].DocID)
		assert.ElementsMatch(t, []string{"go-channels", "rust-ownership"}, hitIDs(res))
	})
}

func TestTextIndex_FieldRestriction(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		res, err := idx.Search(t.Context(), Query{Text: "channels", Fields: []Field{FieldContent}, Limit: 10})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"go-channels", "rust-ownership"}, hitIDs(res))

		res, err = idx.Search(t.Context(), Query{Text: "rust", Fields: []Field{FieldTags}, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"rust-ownership"}, hitIDs(res))
	})
}

func TestTextIndex_PrefixMatchesTitles(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		res, err := idx.Search(t.Context(), Query{Text: "understanding go chan", Fields: []Field{FieldTitle}, Prefix: true, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, []string{"go-channels"}, hitIDs(res))
	})
}

func TestTextIndex_CJKQuery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		res, err := idx.Search(t.Context(), Query{Text: "搜索", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"cjk-post"}, hitIDs(res))
	})
}

func TestTextIndex_Paging(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		res, err := idx.Search(t.Context(), Query{Text: "channels", Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Equal(t, []string{"rust-ownership"}, hitIDs(res))
	})
}

func TestTextIndex_EmptyQueryMatchesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		for _, q := range []string{"", "   ", "!!!"} {
			res, err := idx.Search(t.Context(), Query{Text: q, Limit: 10})
			require.NoError(t, err)
			assert.Empty(t, res.Hits)
			assert.Zero(t, res.Total)
		}
	})
}

func TestTextIndex_ReindexReplaces(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx TextIndex) {
		require.NoError(t, idx.Index(t.Context(), []*Document{{ID: "gardening", Title: "Winter notes"}}))

		assert.Equal(t, 4, idx.Stats().DocumentCount)
		res, err := idx.Search(t.Context(), Query{Text: "tomatoes", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, res.Hits)
	})
}

func TestTextIndex_ClosedIndexErrors(t *testing.T) {
	for _, backend := range ValidBackends {
		idx, err := NewTextIndex(string(backend))
		require.NoError(t, err)
		require.NoError(t, idx.Close())
		require.NoError(t, idx.Close(), "close is idempotent")

		_, err = idx.Search(t.Context(), Query{Text: "go", Limit: 1})
		assert.Error(t, err)
		assert.Equal(t, 0, idx.Stats().DocumentCount)
	}
}

func TestNewTextIndex_InvalidBackend(t *testing.T) {
	idx, err := NewTextIndex("invalid")
	assert.Error(t, err)
	assert.Nil(t, idx)
	assert.Contains(t, err.Error(), "unknown text index backend")
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"go1.22 release", []string{"go1", "22", "release"}},
		{"搜索引擎", []string{"搜索", "索引", "引擎"}},
		{"Go语言", []string{"go", "语言"}},
		{"字", []string{"字"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}
