package searcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

type mockEmbedder struct {
	err   error
	calls atomic.Int32
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type mockVectors struct {
	results   []types.SearchResult
	err       error
	lastLimit int
}

func (m *mockVectors) Search(_ context.Context, _ []float32, limit int) ([]types.SearchResult, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	out := append([]types.SearchResult(nil), m.results...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockText struct {
	results []types.SearchResult
	texts   map[string]string
	err     error
}

func (m *mockText) Search(_ context.Context, _ string, limit int) ([]types.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := append([]types.SearchResult(nil), m.results...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockText) TextByPointIDs(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if t, ok := m.texts[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func hit(id, path string, score float64, source string) types.SearchResult {
	return types.SearchResult{PointID: id, Path: path, ChunkTotal: 1, Score: score, Source: source, Preview: "payload " + id}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchMode
		wantErr bool
	}{
		{"", SearchModeVector, false},
		{"vector", SearchModeVector, false},
		{"fulltext", SearchModeFullText, false},
		{"full-text", SearchModeFullText, false},
		{"keyword", SearchModeFullText, false},
		{"Hybrid", SearchModeHybrid, false},
		{"fuzzy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	s := &Searcher{}

	tests := []struct {
		name     string
		req      SearchRequest
		wantErr  bool
		validate func(t *testing.T, req *SearchRequest)
	}{
		{name: "EmptyQuery", req: SearchRequest{Query: "  "}, wantErr: true},
		{
			name: "ZeroLimit_DefaultsTo10",
			req:  SearchRequest{Query: "q"},
			validate: func(t *testing.T, req *SearchRequest) {
				assert.Equal(t, 10, req.Limit)
				assert.Equal(t, SearchModeVector, req.Mode)
				assert.Equal(t, float64(60), req.RRFConstant)
				assert.Equal(t, defaultCacheTTL, req.CacheTTL)
			},
		},
		{
			name: "ExcessiveLimit_CapsAt100",
			req:  SearchRequest{Query: "q", Limit: 500},
			validate: func(t *testing.T, req *SearchRequest) {
				assert.Equal(t, 100, req.Limit)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := s.validateRequest(&req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyQuery)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, &req)
			}
		})
	}
}

func TestApplyRRF(t *testing.T) {
	vector := []types.SearchResult{hit("a", "/a", 0.9, "vector"), hit("b", "/b", 0.8, "vector")}
	text := []types.SearchResult{hit("b", "/b", 3.1, "fts"), hit("c", "/c", 2.0, "fts")}

	got := applyRRF(vector, text, 60)
	require.Len(t, got, 3)

	// b appears in both lists
	assert.Equal(t, "b", got[0].PointID)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].RRFScore, 1e-12)
	assert.Equal(t, "a", got[1].PointID)
	assert.InDelta(t, 1.0/61, got[1].RRFScore, 1e-12)
	assert.Equal(t, "c", got[2].PointID)
	assert.InDelta(t, 1.0/62, got[2].RRFScore, 1e-12)

	for i, r := range got {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, "hybrid", r.Source)
	}
	// record comes from the vector side
	assert.Equal(t, 0.8, got[0].Score)
}

func TestApplyRRFDefaultConstantAndTies(t *testing.T) {
	vector := []types.SearchResult{hit("a", "/a", 0.9, "vector")}
	text := []types.SearchResult{hit("c", "/c", 1, "fts")}

	got := applyRRF(vector, text, 0)
	require.Len(t, got, 2)
	// equal scores keep vector-first order
	assert.Equal(t, "a", got[0].PointID)
	assert.InDelta(t, 1.0/61, got[0].RRFScore, 1e-12)
}

func TestApplyRRFWithoutPointIDs(t *testing.T) {
	a := types.SearchResult{Path: "/x", ChunkIndex: 2}
	b := types.SearchResult{Path: "/x", ChunkIndex: 2}
	got := applyRRF([]types.SearchResult{a}, []types.SearchResult{b}, 60)
	require.Len(t, got, 1)
	assert.InDelta(t, 2.0/61, got[0].RRFScore, 1e-12)
}

func TestSearchModeVector(t *testing.T) {
	vectors := &mockVectors{results: []types.SearchResult{
		hit("a", "/a", 0.9, "vector"), hit("b", "/b", 0.7, "vector"), hit("c", "/c", 0.5, "vector"),
	}}
	text := &mockText{texts: map[string]string{"a": "stored snippet for a"}}
	s := NewSearcher(vectors, text, &mockEmbedder{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "invoice", Limit: 2, Mode: SearchModeVector})
	require.NoError(t, err)

	assert.Equal(t, 10, vectors.lastLimit, "vector search fetches at least 10")
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.TotalResults)
	assert.Equal(t, 3, resp.VectorResults)
	assert.Equal(t, SearchModeVector, resp.SearchMode)
	assert.Equal(t, "stored snippet for a", resp.Results[0].Preview)
	assert.Equal(t, "payload b", resp.Results[1].Preview)
	assert.Equal(t, 2, resp.Results[1].Rank)
}

func TestSearchModeVectorLargeLimit(t *testing.T) {
	vectors := &mockVectors{}
	s := NewSearcher(vectors, nil, &mockEmbedder{})

	_, err := s.Search(context.Background(), SearchRequest{Query: "q", Limit: 25, Mode: SearchModeVector})
	require.NoError(t, err)
	assert.Equal(t, 25, vectors.lastLimit)
}

func TestSearchModeFullText(t *testing.T) {
	text := &mockText{results: []types.SearchResult{hit("x", "/x", 4, "fts"), hit("y", "/y", 2, "fts")}}
	emb := &mockEmbedder{}
	s := NewSearcher(&mockVectors{}, text, emb)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "contract", Mode: SearchModeFullText})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "fts", resp.Results[0].Source)
	assert.Equal(t, int32(0), emb.calls.Load(), "full-text search never embeds")
}

func TestSearchModeFullTextWithoutSnippets(t *testing.T) {
	s := NewSearcher(&mockVectors{}, nil, &mockEmbedder{})
	_, err := s.Search(context.Background(), SearchRequest{Query: "q", Mode: SearchModeFullText})
	assert.ErrorIs(t, err, ErrNoSnippetStore)
}

func TestSearchModeHybrid(t *testing.T) {
	vectors := &mockVectors{results: []types.SearchResult{hit("a", "/a", 0.9, "vector"), hit("b", "/b", 0.8, "vector")}}
	text := &mockText{results: []types.SearchResult{hit("b", "/b", 5, "fts")}}
	s := NewSearcher(vectors, text, &mockEmbedder{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Limit: 5, Mode: SearchModeHybrid})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "b", resp.Results[0].PointID)
	assert.Greater(t, resp.Results[0].RRFScore, resp.Results[1].RRFScore)
	assert.Equal(t, 2, resp.VectorResults)
	assert.Equal(t, 1, resp.TextResults)
	assert.Empty(t, resp.Warnings)
}

func TestHybridSearchDegradesToOneSide(t *testing.T) {
	t.Run("EmbedderDown", func(t *testing.T) {
		text := &mockText{results: []types.SearchResult{hit("x", "/x", 1, "fts")}}
		s := NewSearcher(&mockVectors{}, text, &mockEmbedder{err: errors.New("ollama down")})

		resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Mode: SearchModeHybrid})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		require.Len(t, resp.Warnings, 1)
		assert.Contains(t, resp.Warnings[0], "ollama down")
	})

	t.Run("NoSnippetStore", func(t *testing.T) {
		vectors := &mockVectors{results: []types.SearchResult{hit("a", "/a", 0.9, "vector")}}
		s := NewSearcher(vectors, nil, &mockEmbedder{})

		resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Mode: SearchModeHybrid})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Empty(t, resp.Warnings)
	})

	t.Run("BothFail", func(t *testing.T) {
		s := NewSearcher(&mockVectors{err: errors.New("qdrant down")}, &mockText{err: errors.New("db locked")}, &mockEmbedder{})
		_, err := s.Search(context.Background(), SearchRequest{Query: "q", Mode: SearchModeHybrid})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "qdrant down")
		assert.Contains(t, err.Error(), "db locked")
	})
}

func TestSearchWithUnsupportedMode(t *testing.T) {
	s := NewSearcher(&mockVectors{}, nil, &mockEmbedder{})
	_, err := s.Search(context.Background(), SearchRequest{Query: "q", Mode: "fuzzy"})
	assert.Error(t, err)
}

func TestSearchWithCache(t *testing.T) {
	vectors := &mockVectors{results: []types.SearchResult{hit("a", "/a", 0.9, "vector")}}
	emb := &mockEmbedder{}
	s := NewSearcher(vectors, nil, emb)
	ctx := context.Background()
	req := SearchRequest{Query: "cached", Mode: SearchModeVector, UseCache: true, CacheTTL: time.Hour}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, int32(1), emb.calls.Load())
	assert.Equal(t, first.Results, second.Results)

	// cached copies are independent
	second.Results[0].Path = "/mutated"
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "/a", third.Results[0].Path)

	s.InvalidateCache()
	assert.Equal(t, 0, s.CacheLen())
	_, err = s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.calls.Load())
}

func TestCacheExpiry(t *testing.T) {
	vectors := &mockVectors{results: []types.SearchResult{hit("a", "/a", 0.9, "vector")}}
	emb := &mockEmbedder{}
	s := NewSearcher(vectors, nil, emb)
	req := SearchRequest{Query: "q", Mode: SearchModeVector, UseCache: true, CacheTTL: time.Nanosecond}

	_, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	resp, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, int32(2), emb.calls.Load())
}

func TestComputeQueryHash(t *testing.T) {
	base := SearchRequest{Query: "q", Limit: 10, Mode: SearchModeHybrid, RRFConstant: 60}
	same := base
	assert.Equal(t, computeQueryHash(base), computeQueryHash(same))

	other := base
	other.Mode = SearchModeVector
	assert.NotEqual(t, computeQueryHash(base), computeQueryHash(other))

	other = base
	other.Limit = 11
	assert.NotEqual(t, computeQueryHash(base), computeQueryHash(other))
}

func TestShortPreview(t *testing.T) {
	assert.Equal(t, "a b c", ShortPreview("a\n b\t\tc "))

	long := strings.Repeat("é", 250)
	got := ShortPreview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, PreviewLimit+3, len([]rune(got)))

	exact := strings.Repeat("x", PreviewLimit)
	assert.Equal(t, exact, ShortPreview(exact))
}

func TestWriteJSONLines(t *testing.T) {
	resp := &SearchResponse{
		SearchMode: SearchModeHybrid,
		Duration:   42 * time.Millisecond,
		Results: []types.SearchResult{
			{Path: "/a.txt", ChunkIndex: 1, ChunkTotal: 3, Score: 0.5, RRFScore: 0.03, Source: "hybrid", Preview: "<b>&</b>"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJSONLines(&buf, "find me", 5, resp))

	sc := bufio.NewScanner(&buf)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)

	var header map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.Equal(t, map[string]any{"query": "find me", "limit": float64(5), "mode": "hybrid", "ms": float64(42)}, header)

	var h map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &h))
	assert.Equal(t, "/a.txt", h["path"])
	assert.Equal(t, float64(1), h["chunk_index"])
	assert.Equal(t, float64(3), h["chunk_total"])
	assert.Equal(t, 0.03, h["rrf_score"])
	assert.Equal(t, "hybrid", h["source"])
	assert.Contains(t, lines[1], "<b>&</b>")
}
