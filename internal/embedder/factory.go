package embedder

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/internal/retry"
)

// New builds the embedding service for the provider selected by cfg.
// Missing credentials for an explicitly selected provider are fatal.
func New(cfg config.Config, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewNop()
	}
	provider, err := newProvider(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewService(provider, NewCache(cfg.EmbedCacheSize), cfg.EmbedMaxChars, log), nil
}

func newProvider(cfg config.Config, log *logger.Logger) (Provider, error) {
	client := newAPIClient(cfg, log)

	switch name := cfg.ResolvedProvider(); name {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, client)
	case ProviderOllama:
		return NewOllamaProvider(OllamaConfig{
			Host:        cfg.OllamaHost,
			Model:       cfg.OllamaModel,
			Endpoint:    cfg.OllamaEmbedEndpoint,
			KeepAlive:   cfg.OllamaKeepAlive,
			Truncate:    cfg.OllamaTruncate,
			Concurrency: cfg.EmbedConcurrency,
		}, client, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, name)
	}
}

func newAPIClient(cfg config.Config, log *logger.Logger) *apiClient {
	if log == nil {
		log = logger.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRPS), max(1, int(cfg.EmbedRPS)))
	}
	return &apiClient{
		http:    &http.Client{Timeout: cfg.HTTPTimeout()},
		limiter: limiter,
		retry: retry.Config{
			MaxRetries: cfg.HTTPRetries,
			BaseDelay:  cfg.RetryBaseDelay(),
			MaxDelay:   cfg.RetryMaxDelay(),
			Multiplier: 2.0,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				log.Warn("embedding request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
			},
		},
	}
}
