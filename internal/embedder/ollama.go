package embedder

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/darkangelpraha/dropindex/internal/logger"
)

const (
	// DefaultOllamaModel is used when no model is configured
	DefaultOllamaModel = "nomic-embed-text"

	// EndpointBatch is the native batch endpoint
	EndpointBatch = "/api/embed"

	// EndpointLegacy accepts one prompt per request
	EndpointLegacy = "/api/embeddings"
)

// OllamaConfig configures the local daemon provider
type OllamaConfig struct {
	Host        string
	Model       string
	Endpoint    string // EndpointBatch or EndpointLegacy
	KeepAlive   string
	Truncate    bool
	Concurrency int // worker limit for the per-text path
}

// OllamaProvider implements Provider against a local Ollama daemon. It uses
// the batch endpoint and falls back to one request per text when the batch
// call fails, so one bad text cannot sink its siblings.
type OllamaProvider struct {
	client *apiClient
	cfg    OllamaConfig
	log    *logger.Logger
}

// NewOllamaProvider creates a new Ollama embedder
func NewOllamaProvider(cfg OllamaConfig, client *apiClient, log *logger.Logger) *OllamaProvider {
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = EndpointBatch
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &OllamaProvider{client: client, cfg: cfg, log: log}
}

func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) []Result {
	if len(texts) == 0 {
		return nil
	}
	if o.cfg.Endpoint == EndpointBatch {
		embs, err := o.embedBatch(ctx, texts)
		if err == nil {
			results := make([]Result, len(texts))
			for i := range embs {
				results[i].Embedding = embs[i]
			}
			return results
		}
		if ctx.Err() != nil {
			return failAll(len(texts), ctx.Err())
		}
		o.log.Warn("ollama batch embed failed, falling back to per-text requests",
			"texts", len(texts), "error", err)
	}
	return o.embedEach(ctx, texts)
}

func (o *OllamaProvider) embedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	reqBody := map[string]interface{}{
		"model":    o.cfg.Model,
		"input":    texts,
		"truncate": o.cfg.Truncate,
	}
	if o.cfg.KeepAlive != "" {
		reqBody["keep_alive"] = o.cfg.KeepAlive
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.client.postJSON(ctx, o.cfg.Host+EndpointBatch, reqBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: ollama batch: %w", ErrProviderFailed, err)
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d inputs", ErrProviderFailed, len(apiResp.Embeddings), len(texts))
	}

	out := make([]*Embedding, len(texts))
	for i, vec := range apiResp.Embeddings {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: ollama returned an empty vector at index %d", ErrProviderFailed, i)
		}
		out[i] = o.wrap(vec)
	}
	return out, nil
}

// embedEach runs one legacy request per text on a bounded pool. Every slot
// captures its own error; the group itself never fails.
func (o *OllamaProvider) embedEach(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			emb, err := o.embedOne(ctx, text)
			results[i] = Result{Embedding: emb, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *OllamaProvider) embedOne(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	reqBody := map[string]interface{}{
		"model":  o.cfg.Model,
		"prompt": text,
	}
	if o.cfg.KeepAlive != "" {
		reqBody["keep_alive"] = o.cfg.KeepAlive
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := o.client.postJSON(ctx, o.cfg.Host+EndpointLegacy, reqBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: ollama: %w", ErrProviderFailed, err)
	}
	if len(apiResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty vector", ErrProviderFailed)
	}
	return o.wrap(apiResp.Embedding), nil
}

func (o *OllamaProvider) wrap(vec []float32) *Embedding {
	return &Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Provider:  ProviderOllama,
		Model:     o.cfg.Model,
	}
}

func (o *OllamaProvider) Name() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.cfg.Model
}

func (o *OllamaProvider) Close() error {
	o.client.close()
	return nil
}
