// Package embedding turns text into vectors through a pluggable provider and
// absorbs every provider failure into an explicit Unavailable result.
//
// Providers (llama-server, OpenAI-compatible, Ollama) report failures as Go
// errors. Client is the only type the rest of memoryd talks to: it bounds
// each call with a timeout, enforces a single corpus dimensionality, and
// returns a Result that callers must unpack with Vector(), so the degraded
// path cannot be ignored by accident.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pi-llama/memoryd/common/trace"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNoData means the provider answered but carried no vector.
	ErrNoData = errors.New("embedding: no embedding data returned")

	// ErrUnrecognizedShape means the provider response matched none of the
	// accepted protocol shapes.
	ErrUnrecognizedShape = errors.New("embedding: unrecognized response shape")

	// ErrDimensionMismatch means the vector length differs from the corpus
	// dimensionality.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

	// ErrDisabled is the reason reported when no provider is configured.
	ErrDisabled = errors.New("embedding: provider disabled")

	// ErrEmptyText is the reason reported for empty input.
	ErrEmptyText = errors.New("embedding: empty text")
)

// Provider computes an embedding for one text input. Implementations make at
// most one network request per call and never retry.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is either a vector or the reason no vector is available.
type Result struct {
	vector []float32
	reason error
}

// Available wraps a vector.
func Available(v []float32) Result {
	return Result{vector: v}
}

// Unavailable wraps the reason a vector could not be produced.
func Unavailable(reason error) Result {
	if reason == nil {
		reason = ErrNoData
	}
	return Result{reason: reason}
}

// Vector returns the vector and true, or nil and false when unavailable.
func (r Result) Vector() ([]float32, bool) {
	if r.reason != nil || len(r.vector) == 0 {
		return nil, false
	}
	return r.vector, true
}

// Reason returns why the result is unavailable, or nil for a vector.
func (r Result) Reason() error {
	if r.reason == nil && len(r.vector) == 0 {
		return ErrNoData
	}
	return r.reason
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout bounds each provider call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Dimension seeds the expected vector length, usually from the
	// dimensionality already present in the store. Zero means "learn it
	// from the first vector".
	Dimension int
}

// Client wraps a Provider with the soft-failure contract.
// It is safe for concurrent use.
type Client struct {
	provider Provider
	timeout  time.Duration
	dim      atomic.Int64
	logger   *slog.Logger
}

// NewClient creates a Client. A nil provider yields a client whose every
// call is Unavailable(ErrDisabled). If logger is nil, slog.Default is used.
func NewClient(provider Provider, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{provider: provider, timeout: cfg.Timeout, logger: logger}
	if cfg.Dimension > 0 {
		c.dim.Store(int64(cfg.Dimension))
	}
	return c
}

// Dimension returns the corpus dimensionality, or 0 if none is known yet.
func (c *Client) Dimension() int {
	return int(c.dim.Load())
}

// SetDimension pins the expected vector length. It is a no-op once a
// dimension is known.
func (c *Client) SetDimension(n int) {
	if n > 0 {
		c.dim.CompareAndSwap(0, int64(n))
	}
}

// Embed asks the provider for a vector. It never returns an error: every
// failure (timeout, transport, status, shape, dimension) becomes an
// Unavailable result and is logged at WARN.
func (c *Client) Embed(ctx context.Context, text string) Result {
	if c.provider == nil {
		return Unavailable(ErrDisabled)
	}
	if text == "" {
		return Unavailable(ErrEmptyText)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	vec, err := c.provider.Embed(ctx, text)
	if err == nil && len(vec) == 0 {
		err = ErrNoData
	}
	if err == nil {
		err = c.checkDimension(len(vec))
	}
	if err != nil {
		c.logger.Warn("embedding unavailable",
			"err", err,
			"text_len", len(text),
			"elapsed", time.Since(start),
			"trace_id", trace.FromContext(ctx),
		)
		return Unavailable(err)
	}

	c.logger.Debug("embedding computed",
		"dim", len(vec),
		"elapsed", time.Since(start),
		"trace_id", trace.FromContext(ctx),
	)
	return Available(vec)
}

func (c *Client) checkDimension(n int) error {
	if c.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := c.dim.Load(); want != int64(n) {
		return fmt.Errorf("%w: got %d, corpus uses %d", ErrDimensionMismatch, n, want)
	}
	return nil
}
