package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pi-llama/memoryd/common/trace"
	"github.com/pi-llama/memoryd/internal/memoryd/embedding"
)

const (
	DefaultSearchLimit = 5
	DefaultListLimit   = 50
	DefaultThreshold   = 0.3
)

// Embedder is satisfied by *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) embedding.Result
}

// ServiceConfig holds caller-facing defaults.
type ServiceConfig struct {
	SearchLimit int
	ListLimit   int
	Threshold   float64

	// FoldCaseFallback makes the fallback substring match case-insensitive.
	FoldCaseFallback bool
}

// DefaultServiceConfig returns the documented defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SearchLimit: DefaultSearchLimit,
		ListLimit:   DefaultListLimit,
		Threshold:   DefaultThreshold,
	}
}

// Service composes the store, embedder, similarity ranking and fallback
// matcher into save/search/list/delete. It holds no per-request state.
type Service struct {
	store    Store
	embedder Embedder
	matcher  *TextMatcher
	cfg      ServiceConfig
	logger   *slog.Logger
}

// NewService creates a Service. Zero limits in cfg fall back to the
// defaults; the threshold is taken as given. If logger is nil,
// slog.Default is used.
func NewService(store Store, embedder Embedder, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		matcher:  NewTextMatcher(store, cfg.FoldCaseFallback),
		cfg:      cfg,
		logger:   logger,
	}
}

// Config returns the effective defaults.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Save embeds content and stores it. An unavailable embedding never fails
// the save; the record is stored without a vector and HasEmbedding reports
// false. An empty category becomes DefaultCategory.
func (s *Service) Save(ctx context.Context, content, category string) (Record, error) {
	if category == "" {
		category = DefaultCategory
	}

	rec := NewRecord{Content: content, Category: category}
	if vec, ok := s.embedder.Embed(ctx, content).Vector(); ok {
		rec.Embedding = vec
	}

	stored, err := s.store.Insert(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("memory: save: %w", err)
	}

	s.logger.Info("memory saved",
		"id", stored.ID,
		"category", stored.Category,
		"has_embedding", stored.HasEmbedding(),
		"trace_id", trace.FromContext(ctx),
	)
	return stored, nil
}

// SearchOption adjusts a single Search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	limit     int
	threshold float64
}

// WithLimit caps the number of results. Non-positive values are ignored.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithThreshold sets the minimum similarity for vector matches.
func WithThreshold(t float64) SearchOption {
	return func(o *searchOptions) { o.threshold = t }
}

// SearchResult carries the ranked matches and whether the substring
// fallback produced them.
type SearchResult struct {
	Matches  []Match
	Fallback bool
}

// Search ranks memories against query. Vector ranking is used when the
// query embeds and at least one stored record has an embedding; otherwise
// the substring fallback answers. No matches is an empty result, not an
// error.
func (s *Service) Search(ctx context.Context, query string, opts ...SearchOption) (SearchResult, error) {
	o := searchOptions{limit: s.cfg.SearchLimit, threshold: s.cfg.Threshold}
	for _, opt := range opts {
		opt(&o)
	}

	if vec, ok := s.embedder.Embed(ctx, query).Vector(); ok {
		candidates, err := s.store.ScanWithEmbeddings(ctx)
		if err != nil {
			return SearchResult{}, fmt.Errorf("memory: search: %w", err)
		}
		if len(candidates) > 0 {
			ranked, err := Rank(ctx, vec, candidates, o.threshold, o.limit)
			if err != nil {
				return SearchResult{}, fmt.Errorf("memory: rank: %w", err)
			}
			matches := make([]Match, len(ranked))
			for i, r := range ranked {
				matches[i] = Match{Record: r.Record, Similarity: round4(r.Score)}
			}
			s.logger.Debug("memory search",
				"mode", "vector",
				"candidates", len(candidates),
				"results", len(matches),
				"trace_id", trace.FromContext(ctx),
			)
			return SearchResult{Matches: matches}, nil
		}
	}

	matches, err := s.matcher.Search(ctx, query, o.limit)
	if err != nil {
		return SearchResult{}, fmt.Errorf("memory: text search: %w", err)
	}
	s.logger.Debug("memory search",
		"mode", "text",
		"results", len(matches),
		"trace_id", trace.FromContext(ctx),
	)
	return SearchResult{Matches: matches, Fallback: true}, nil
}

// List returns up to limit records newest first, optionally restricted to
// category. A non-positive limit uses the configured default.
func (s *Service) List(ctx context.Context, category string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = s.cfg.ListLimit
	}
	records, err := s.store.List(ctx, ListOptions{Category: category, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("memory: list: %w", err)
	}
	return records, nil
}

// Delete removes a record and reports whether it existed.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("memory: delete: %w", err)
	}
	if deleted {
		s.logger.Info("memory deleted", "id", id, "trace_id", trace.FromContext(ctx))
	}
	return deleted, nil
}

// Stats reports store counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("memory: stats: %w", err)
	}
	return st, nil
}
