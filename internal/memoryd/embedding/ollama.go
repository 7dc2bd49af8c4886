package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	ollama "github.com/ollama/ollama/api"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures the Ollama embedding provider.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OllamaProvider implements Provider with Ollama's /api/embed.
type OllamaProvider struct {
	client *ollama.Client
	model  string
}

// NewOllamaProvider creates an Ollama provider. It fails only when BaseURL
// does not parse.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("embedder ollama: parse base url: %w", err)
	}
	return &OllamaProvider{
		client: ollama.NewClient(u, cfg.HTTPClient),
		model:  cfg.Model,
	}, nil
}

// Embed requests a single embedding.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := p.client.Embed(ctx, &ollama.EmbedRequest{
		Model: p.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder ollama: embed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedder ollama: %w", ErrNoData)
	}
	return res.Embeddings[0], nil
}

var _ Provider = (*OllamaProvider)(nil)
