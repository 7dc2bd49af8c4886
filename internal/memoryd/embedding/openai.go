package embedding

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API root (Azure, vLLM, llama-server's /v1).
	// Empty means the public OpenAI endpoint.
	BaseURL string

	Model string

	HTTPClient *http.Client
}

// OpenAIProvider implements Provider with the /embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}
}

// Embed requests a single embedding.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedder openai: create embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder openai: %w", ErrNoData)
	}
	return resp.Data[0].Embedding, nil
}

var _ Provider = (*OpenAIProvider)(nil)
