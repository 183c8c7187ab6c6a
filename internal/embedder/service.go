package embedder

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/darkangelpraha/dropindex/internal/logger"
)

// Service is the embedding entry point used by the indexer and search. It
// clamps texts, serves repeats from the LRU cache and sends each distinct
// miss to the provider once.
type Service struct {
	provider Provider
	cache    *Cache
	maxChars int
	log      *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewService wraps a provider. cache may be nil to disable caching.
func NewService(provider Provider, cache *Cache, maxChars int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{provider: provider, cache: cache, maxChars: maxChars, log: log}
}

// Embed returns one Result per text in input order. Each successful
// Embedding.Hash is the hash of the clamped text that was embedded.
func (s *Service) Embed(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	// unique misses, in first-seen order
	pending := make(map[string][]int)
	var order []string
	var missTexts []string

	for i, text := range texts {
		clamped := ClampText(text, s.maxChars)
		if clamped == "" {
			results[i].Err = ErrEmptyText
			continue
		}
		hash := ComputeHash(clamped)
		if s.cache != nil {
			if emb, ok := s.cache.Get(hash); ok {
				s.hits.Add(1)
				results[i].Embedding = emb
				continue
			}
		}
		if _, seen := pending[hash]; !seen {
			order = append(order, hash)
			missTexts = append(missTexts, clamped)
		}
		pending[hash] = append(pending[hash], i)
	}

	if len(missTexts) == 0 {
		return results
	}
	s.misses.Add(int64(len(missTexts)))

	fresh := s.provider.EmbedBatch(ctx, missTexts)
	if len(fresh) != len(missTexts) {
		err := fmt.Errorf("%w: provider returned %d results for %d texts", ErrProviderFailed, len(fresh), len(missTexts))
		fresh = failAll(len(missTexts), err)
	}

	for j, hash := range order {
		res := fresh[j]
		if res.Err == nil && res.Embedding != nil {
			res.Embedding.Hash = hash
			if s.cache != nil {
				s.cache.Set(hash, res.Embedding)
			}
		} else if res.Err == nil {
			res.Err = fmt.Errorf("%w: no embedding returned", ErrProviderFailed)
		}
		for _, i := range pending[hash] {
			if res.Err != nil {
				results[i].Err = res.Err
				continue
			}
			// every slot gets its own copy
			vec := make([]float32, len(res.Embedding.Vector))
			copy(vec, res.Embedding.Vector)
			emb := *res.Embedding
			emb.Vector = vec
			results[i].Embedding = &emb
		}
	}
	return results
}

// EmbedQuery embeds a single search query
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res := s.Embed(ctx, []string{text})
	if res[0].Err != nil {
		return nil, res[0].Err
	}
	return res[0].Embedding.Vector, nil
}

// DetectDimension embeds BootstrapText and returns the vector length.
func (s *Service) DetectDimension(ctx context.Context) (int, error) {
	vec, err := s.EmbedQuery(ctx, BootstrapText)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDimensionUnknown, err)
	}
	if len(vec) == 0 {
		return 0, ErrDimensionUnknown
	}
	return len(vec), nil
}

// Provider returns the active provider name
func (s *Service) Provider() string {
	return s.provider.Name()
}

// Model returns the active model name
func (s *Service) Model() string {
	return s.provider.Model()
}

// CacheStats reports cache hits and provider-bound misses so far
func (s *Service) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Close releases the provider
func (s *Service) Close() error {
	return s.provider.Close()
}
