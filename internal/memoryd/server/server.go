// Package server exposes the memory service over HTTP.
//
// Endpoints:
//
//	GET    /                    → {"status":"ok","service":"memory-api"}
//	GET    /health              → HealthResponse
//	GET    /status              → StatusResponse
//	POST   /memories            → CreateRequest → MemoryCreated
//	GET    /memories            → []MemoryItem   (?category=&limit=)
//	GET    /memories/search     → SearchResponse (?q=&limit=)
//	POST   /memories/search     → SearchRequest → SearchResponse
//	DELETE /memories/{id}       → DeleteResponse, or 404
//
// Errors are returned as {"detail": "<message>"}.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pi-llama/memoryd/common/trace"
	"github.com/pi-llama/memoryd/common/version"
	"github.com/pi-llama/memoryd/internal/memoryd/memory"
)

// ServiceName is reported by GET /.
const ServiceName = "memory-api"

// MemoryService is the slice of *memory.Service the handlers call.
type MemoryService interface {
	Save(ctx context.Context, content, category string) (memory.Record, error)
	Search(ctx context.Context, query string, opts ...memory.SearchOption) (memory.SearchResult, error)
	List(ctx context.Context, category string, limit int) ([]memory.Record, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context) (memory.Stats, error)
}

var _ MemoryService = (*memory.Service)(nil)

// Server routes HTTP requests to a MemoryService.
type Server struct {
	router    *chi.Mux
	svc       MemoryService
	validator *validator
	logger    *slog.Logger
	startedAt time.Time

	// embeddingDim reports the corpus vector length for /status; optional.
	embeddingDim func() int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStartedAt sets the process start time reported by /status.
func WithStartedAt(t time.Time) Option {
	return func(s *Server) { s.startedAt = t }
}

// WithEmbeddingDimension reports the current embedding dimension on /status.
func WithEmbeddingDimension(fn func() int) Option {
	return func(s *Server) { s.embeddingDim = fn }
}

// New builds the router.
func New(svc MemoryService, opts ...Option) (*Server, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		svc:       svc,
		validator: v,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := s.router
	r.Use(withTrace)
	r.Use(s.accessLogger)
	r.Use(middleware.Recoverer)
	r.Use(allowAnyOrigin)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Route("/memories", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/search", s.handleSearchQuery)
		r.Post("/search", s.handleSearchBody)
		r.Delete("/{id}", s.handleDelete)
	})

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Service            string       `json:"service"`
	Version            string       `json:"version"`
	Uptime             float64      `json:"uptime_seconds"`
	StartedAt          time.Time    `json:"started_at"`
	Memories           memory.Stats `json:"memories"`
	EmbeddingDimension int          `json:"embedding_dimension"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: ServiceName,
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := StatusResponse{
		Service:   ServiceName,
		Version:   version.Version,
		Uptime:    time.Since(s.startedAt).Seconds(),
		StartedAt: s.startedAt,
		Memories:  stats,
	}
	if s.embeddingDim != nil {
		resp.EmbeddingDimension = s.embeddingDim()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
		"trace_id", trace.FromContext(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // header already committed
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
