// Package app wires the memoryd subsystems: record store, embedding client,
// memory service and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pi-llama/memoryd/common/retry"
	"github.com/pi-llama/memoryd/common/version"
	"github.com/pi-llama/memoryd/internal/memoryd/config"
	"github.com/pi-llama/memoryd/internal/memoryd/embedding"
	"github.com/pi-llama/memoryd/internal/memoryd/memory"
	"github.com/pi-llama/memoryd/internal/memoryd/server"
)

// probeAttempts never runs out in practice; embedding.wait_ready bounds the
// probe by time instead.
const probeAttempts = math.MaxInt32

// probeRetry is the backoff used while waiting for the embedding server.
var probeRetry = retry.Config{
	MaxAttempts:  probeAttempts,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// App is a fully wired memoryd instance.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	startedAt time.Time

	store    memory.Store
	cache    *embedding.CachedProvider
	embedder *embedding.Client
	svc      *memory.Service
	handler  *server.Server

	mu         sync.Mutex
	httpServer *http.Server
	stopOnce   sync.Once
}

// New opens the store, builds the embedding client and service, and
// prepares the HTTP handler. It does not listen; call Run for that. If
// logger is nil, slog.Default is used.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, startedAt: time.Now()}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store

	provider, err := NewProvider(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, err
	}
	if provider != nil && cfg.Embedding.CacheSize > 0 {
		cached, err := embedding.NewCachedProvider(provider, cfg.Embedding.CacheSize)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("app: embedding cache: %w", err)
		}
		a.cache = cached
		provider = cached
	}

	// Seed the dimension guard from what is already stored so a model swap
	// cannot mix vector lengths in one corpus.
	dim, err := store.EmbeddingDimension(ctx)
	if err != nil {
		a.Stop()
		return nil, fmt.Errorf("app: read embedding dimension: %w", err)
	}
	a.embedder = embedding.NewClient(provider, embedding.ClientConfig{
		Timeout:   cfg.Embedding.Timeout,
		Dimension: dim,
	}, logger)

	a.svc = memory.NewService(store, a.embedder, cfg.ServiceConfig(), logger)

	a.handler, err = server.New(a.svc,
		server.WithLogger(logger),
		server.WithStartedAt(a.startedAt),
		server.WithEmbeddingDimension(a.embedder.Dimension),
	)
	if err != nil {
		a.Stop()
		return nil, fmt.Errorf("app: build server: %w", err)
	}

	logger.Info("memoryd initialized",
		"config", cfg,
		"embedding_dimension", dim,
	)
	return a, nil
}

// OpenStore opens the configured record store.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (memory.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		s, err := memory.OpenPostgres(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("app: open store: %w", err)
		}
		return s, nil
	case config.DriverSQLite, "":
		path := cfg.DatabasePath()
		if dir := cfg.DataDir; path != ":memory:" && cfg.Storage.Path == "" && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("app: create data dir %s: %w", dir, err)
			}
		}
		s, err := memory.OpenSQLite(path, logger)
		if err != nil {
			return nil, fmt.Errorf("app: open store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewProvider builds the configured embedding provider. ProviderNone
// returns a nil provider, which the embedding client treats as disabled.
func NewProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case config.ProviderLlama, "":
		return embedding.NewLlamaProvider(embedding.LlamaConfig{
			BaseURL: cfg.URL,
			Path:    cfg.Path,
		}), nil
	case config.ProviderOpenAI:
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		}), nil
	case config.ProviderOllama:
		p, err := embedding.NewOllamaProvider(embedding.OllamaConfig{
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("app: ollama provider: %w", err)
		}
		return p, nil
	case config.ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("app: unknown embedding provider %q", cfg.Provider)
	}
}

// Service returns the memory service.
func (a *App) Service() *memory.Service {
	return a.svc
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, SIGINT/SIGTERM arrives, or the
// server fails. It stops the app before returning.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.Stop()

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.HTTP.Addr, err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
	}
	a.mu.Lock()
	a.httpServer = srv
	a.mu.Unlock()

	if a.cfg.Embedding.WaitReady > 0 && a.cfg.Embedding.Provider == config.ProviderLlama {
		go a.waitForEmbedding(ctx)
	}

	a.logger.Info("memoryd listening",
		"addr", ln.Addr().String(),
		"version", version.Version,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// waitForEmbedding polls llama-server until it is ready. Failure only logs;
// the service runs degraded until the provider comes up.
func (a *App) waitForEmbedding(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Embedding.WaitReady)
	defer cancel()

	url := a.cfg.Embedding.ServerURL()
	start := time.Now()
	if err := embedding.WaitReady(ctx, url, nil, probeRetry); err != nil {
		a.logger.Warn("embedding server not ready; similarity search degraded to text match",
			"url", url,
			"err", err,
		)
		return
	}
	a.logger.Info("embedding server ready",
		"url", url,
		"waited", time.Since(start),
	)
}

// Stop shuts the HTTP server down and closes the store. It is safe to call
// more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		srv := a.httpServer
		a.mu.Unlock()

		if srv != nil {
			timeout := a.cfg.HTTP.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.logger.Warn("http shutdown", "err", err)
			}
		}
		if a.cache != nil {
			a.cache.Close()
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Warn("close store", "err", err)
			}
		}
	})
}
