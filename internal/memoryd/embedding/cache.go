package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider memoizes successful embeddings by exact text. Failures are
// never cached, so a provider outage does not outlive itself.
type CachedProvider struct {
	next  Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps next with a cache holding up to size vectors.
func NewCachedProvider(next Provider, size int64) (*CachedProvider, error) {
	if size <= 0 {
		return nil, fmt.Errorf("embedding cache: size must be positive, got %d", size)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachedProvider{next: next, cache: cache}, nil
}

// Embed returns the cached vector for text or asks the wrapped provider.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		c.cache.Set(text, vec, 1)
	}
	return vec, nil
}

// Close releases the cache goroutines.
func (c *CachedProvider) Close() {
	c.cache.Close()
}

var _ Provider = (*CachedProvider)(nil)
