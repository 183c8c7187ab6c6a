package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid   SearchMode = "hybrid"   // Vector + full-text with RRF
	SearchModeVector   SearchMode = "vector"   // Vector similarity only
	SearchModeFullText SearchMode = "fulltext" // Snippet store text search only
)

const (
	defaultLimit     = 10
	maxLimit         = 100
	minVectorFetch   = 10
	defaultRRF       = 60
	defaultCacheSize = 1000
	defaultCacheTTL  = 5 * time.Minute
)

var (
	// ErrEmptyQuery is returned for blank queries
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrNoSnippetStore is returned when full-text search is requested without a snippet store
	ErrNoSnippetStore = errors.New("full-text search needs a snippet store")
)

// ParseMode maps a CLI or tool argument to a SearchMode. "keyword" and
// "full-text" are accepted as aliases of fulltext.
func ParseMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vector":
		return SearchModeVector, nil
	case "fulltext", "full-text", "keyword", "fts":
		return SearchModeFullText, nil
	case "hybrid":
		return SearchModeHybrid, nil
	default:
		return "", fmt.Errorf("unsupported search mode: %q", s)
	}
}

// QueryEmbedder turns a query string into a vector
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs nearest-neighbour queries
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]types.SearchResult, error)
}

// TextSearcher runs keyword queries and serves stored chunk text
type TextSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
	TextByPointIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
	Warnings      []string
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates search across the vector store and the snippet store
type Searcher struct {
	vectors  VectorSearcher
	text     TextSearcher
	embedder QueryEmbedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a Searcher. text may be nil when snippets are disabled.
func NewSearcher(vectors VectorSearcher, text TextSearcher, embedder QueryEmbedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](defaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		vectors:  vectors,
		text:     text,
		embedder: embedder,
		cache:    cache,
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeFullText:
		response, err = s.fullTextSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode
	response.TotalResults = len(response.Results)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

func (s *Searcher) runVector(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if s.vectors == nil || s.embedder == nil {
		return nil, errors.New("vector search not configured")
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := s.vectors.Search(ctx, vec, max(limit, minVectorFetch))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

func (s *Searcher) runText(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if s.text == nil {
		return nil, ErrNoSnippetStore
	}
	results, err := s.text.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	return results, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	results, err := s.runVector(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	s.attachPreviews(ctx, results)

	resp := &SearchResponse{VectorResults: len(results)}
	resp.Results = rerank(limitResults(results, req.Limit))
	return resp, nil
}

func (s *Searcher) fullTextSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	results, err := s.runText(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Results:     rerank(limitResults(results, req.Limit)),
		TextResults: len(results),
	}, nil
}

// hybridSearch runs both searches concurrently. One side failing degrades
// the response to the other side; both failing is an error.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var (
		vectorResults, textResults []types.SearchResult
		vectorErr, textErr         error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorResults, vectorErr = s.runVector(gctx, req.Query, req.Limit)
		return nil
	})
	g.Go(func() error {
		textResults, textErr = s.runText(gctx, req.Query, max(req.Limit, minVectorFetch))
		return nil
	})
	_ = g.Wait()

	if vectorErr != nil && textErr != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", errors.Join(vectorErr, textErr))
	}

	resp := &SearchResponse{
		VectorResults: len(vectorResults),
		TextResults:   len(textResults),
	}
	if vectorErr != nil {
		resp.Warnings = append(resp.Warnings, vectorErr.Error())
	}
	if textErr != nil && !errors.Is(textErr, ErrNoSnippetStore) {
		resp.Warnings = append(resp.Warnings, textErr.Error())
	}

	s.attachPreviews(ctx, vectorResults)
	fused := applyRRF(vectorResults, textResults, req.RRFConstant)
	resp.Results = limitResults(fused, req.Limit)
	return resp, nil
}

// applyRRF merges result lists by point id.
// RRF formula: RRF(d) = Σ 1/(k + rank(d)), ranks starting at 1.
// The first list a point appears in supplies its record.
func applyRRF(vectorResults, textResults []types.SearchResult, k float64) []types.SearchResult {
	if k == 0 {
		k = defaultRRF
	}

	scores := make(map[string]float64)
	records := make(map[string]types.SearchResult)
	order := make([]string, 0, len(vectorResults)+len(textResults))

	for _, list := range [][]types.SearchResult{vectorResults, textResults} {
		for rank, r := range list {
			key := fusionKey(r)
			if _, seen := records[key]; !seen {
				records[key] = r
				order = append(order, key)
			} else if records[key].Preview == "" && r.Preview != "" {
				rec := records[key]
				rec.Preview = r.Preview
				records[key] = rec
			}
			scores[key] += 1.0 / (k + float64(rank+1))
		}
	}

	results := make([]types.SearchResult, 0, len(order))
	for _, key := range order {
		r := records[key]
		r.RRFScore = scores[key]
		r.Source = string(SearchModeHybrid)
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RRFScore > results[j].RRFScore
	})
	return rerank(results)
}

func fusionKey(r types.SearchResult) string {
	if r.PointID != "" {
		return r.PointID
	}
	return fmt.Sprintf("%s#%d", r.Path, r.ChunkIndex)
}

// attachPreviews replaces payload previews with stored snippet text when available
func (s *Searcher) attachPreviews(ctx context.Context, results []types.SearchResult) {
	if s.text == nil || len(results) == 0 {
		return
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.PointID != "" {
			ids = append(ids, r.PointID)
		}
	}
	texts, err := s.text.TextByPointIDs(ctx, ids)
	if err != nil {
		return
	}
	for i := range results {
		if text, ok := texts[results[i].PointID]; ok && text != "" {
			results[i].Preview = text
		}
	}
}

func limitResults(results []types.SearchResult, limit int) []types.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func rerank(results []types.SearchResult) []types.SearchResult {
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeVector
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = defaultRRF
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = defaultCacheTTL
	}
	return nil
}

func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse.
// SearchResult holds only value fields so copying the slice is enough.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	dst.Warnings = append([]string(nil), src.Warnings...)
	return &dst
}

func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%.2f", req.Limit, req.RRFConstant)
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Called after index runs.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
