package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultLlamaURL  = "http://localhost:5000"
	DefaultLlamaPath = "/embedding"

	// maxResponseBytes caps the provider response we are willing to buffer.
	maxResponseBytes = 16 << 20
)

// LlamaConfig configures the llama-server embedding provider.
type LlamaConfig struct {
	// BaseURL is the llama-server root, e.g. http://localhost:5000.
	BaseURL string

	// Path is appended to BaseURL. Defaults to /embedding.
	Path string

	// HTTPClient overrides the transport. Timeouts are applied per call by
	// Client, so the default client has none of its own.
	HTTPClient *http.Client
}

// LlamaProvider implements Provider against llama-server's native
// /embedding endpoint: POST {"content": text}.
type LlamaProvider struct {
	endpoint string
	client   *http.Client
}

// NewLlamaProvider creates a provider for the given llama-server.
func NewLlamaProvider(cfg LlamaConfig) *LlamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLlamaURL
	}
	if cfg.Path == "" {
		cfg.Path = DefaultLlamaPath
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &LlamaProvider{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		client:   cfg.HTTPClient,
	}
}

// Endpoint returns the full URL requests are sent to.
func (p *LlamaProvider) Endpoint() string {
	return p.endpoint
}

type llamaRequest struct {
	Content string `json:"content"`
}

// Embed sends one request and parses the response.
func (p *LlamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(llamaRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("embedder llama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embedder llama: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder llama: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("embedder llama: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("embedder llama: unexpected HTTP status %d", resp.StatusCode)
	}

	vec, err := parseLlamaResponse(body)
	if err != nil {
		return nil, fmt.Errorf("embedder llama: %w", err)
	}
	return vec, nil
}

// parseLlamaResponse accepts exactly two shapes:
//
//	[{"index": 0, "embedding": [[0.1, ...]]}]   list, nested or flat vector
//	{"embedding": [0.1, ...]}                    flat object
//
// Anything else is ErrUnrecognizedShape.
func parseLlamaResponse(body []byte) ([]float32, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrUnrecognizedShape
	}

	switch body[0] {
	case '[':
		var items []struct {
			Embedding json.RawMessage `json:"embedding"`
		}
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		if len(items) == 0 {
			return nil, ErrNoData
		}
		return parseVector(items[0].Embedding, true)

	case '{':
		var obj struct {
			Embedding json.RawMessage `json:"embedding"`
		}
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		return parseVector(obj.Embedding, false)
	}

	return nil, ErrUnrecognizedShape
}

// parseVector decodes a flat numeric array, or (when allowNested) an array
// of arrays whose first element is taken.
func parseVector(raw json.RawMessage, allowNested bool) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoData
	}

	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, ErrNoData
		}
		return flat, nil
	}

	if !allowNested {
		return nil, ErrUnrecognizedShape
	}

	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return nil, ErrNoData
	}
	return nested[0], nil
}

var _ Provider = (*LlamaProvider)(nil)
