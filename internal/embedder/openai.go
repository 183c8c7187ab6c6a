package embedder

import (
	"context"
	"fmt"
	"sort"
)

const (
	// DefaultOpenAIModel is used when no model is configured
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIBaseURL is the public API
	DefaultOpenAIBaseURL = "https://api.openai.com"

	// MaxBatchSize is the most inputs sent in one request
	MaxBatchSize = 100
)

// OpenAIProvider implements Provider using the OpenAI embeddings API.
// Each request is a single batched call; a failed request fails only the
// texts it carried.
type OpenAIProvider struct {
	client  *apiClient
	baseURL string
	model   string
}

// NewOpenAIProvider creates a new OpenAI embedder. A missing key is a
// configuration error.
func NewOpenAIProvider(apiKey, model, baseURL string, client *apiClient) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if client.headers == nil {
		client.headers = make(map[string]string)
	}
	client.headers["Authorization"] = "Bearer " + apiKey

	return &OpenAIProvider{client: client, baseURL: baseURL, model: model}, nil
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	// empty slots never reach the API
	idx := make([]int, 0, len(texts))
	for i, t := range texts {
		if t == "" {
			results[i].Err = ErrEmptyText
			continue
		}
		idx = append(idx, i)
	}

	for start := 0; start < len(idx); start += MaxBatchSize {
		part := idx[start:min(start+MaxBatchSize, len(idx))]
		inputs := make([]string, len(part))
		for j, i := range part {
			inputs[j] = texts[i]
		}

		embs, err := o.callAPI(ctx, inputs)
		for j, i := range part {
			if err != nil {
				results[i].Err = err
				continue
			}
			results[i].Embedding = embs[j]
		}
	}
	return results
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": o.model,
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := o.client.postJSON(ctx, o.baseURL+"/v1/embeddings", reqBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: openai: %w", ErrProviderFailed, err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs", ErrProviderFailed, len(apiResp.Data), len(texts))
	}

	sort.SliceStable(apiResp.Data, func(a, b int) bool { return apiResp.Data[a].Index < apiResp.Data[b].Index })

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) == 0 {
			return nil, fmt.Errorf("%w: openai returned an empty vector at index %d", ErrProviderFailed, i)
		}
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  ProviderOpenAI,
			Model:     o.model,
		}
	}
	return embeddings, nil
}

func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.client.close()
	return nil
}
