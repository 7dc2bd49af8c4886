package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pi-llama/memoryd/internal/memoryd/memory"
)

// CreateRequest is the body of POST /memories.
type CreateRequest struct {
	Content  string  `json:"content"`
	Category *string `json:"category"`
}

// SearchRequest is the body of POST /memories/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

// MemoryCreated is returned by POST /memories.
type MemoryCreated struct {
	ID           int64  `json:"id"`
	Content      string `json:"content"`
	Category     string `json:"category"`
	CreatedAt    string `json:"created_at"`
	HasEmbedding bool   `json:"has_embedding"`
}

// MemoryItem is one element of GET /memories.
type MemoryItem struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at"`
}

// SearchHit is one search result.
type SearchHit struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
	CreatedAt  string  `json:"created_at"`
}

// SearchResponse is returned by both search routes.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// DeleteResponse is returned by DELETE /memories/{id}.
type DeleteResponse struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := s.validator.decode(r.Body, schemaCreateMemory, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category := memory.DefaultCategory
	if req.Category != nil && *req.Category != "" {
		category = *req.Category
	}

	rec, err := s.svc.Save(r.Context(), req.Content, category)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MemoryCreated{
		ID:           rec.ID,
		Content:      rec.Content,
		Category:     rec.Category,
		CreatedAt:    memory.FormatTime(rec.CreatedAt),
		HasEmbedding: rec.HasEmbedding(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	records, err := s.svc.List(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	items := make([]MemoryItem, len(records))
	for i, rec := range records {
		items[i] = MemoryItem{
			ID:        rec.ID,
			Content:   rec.Content,
			Category:  rec.Category,
			CreatedAt: memory.FormatTime(rec.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	s.search(w, r, q, limit)
}

func (s *Server) handleSearchBody(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := s.validator.decode(r.Body, schemaSearchMemories, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var limit int
	if req.Limit != nil {
		limit = *req.Limit
	}
	s.search(w, r, req.Query, limit)
}

// search runs the query; a zero limit uses the service default.
func (s *Server) search(w http.ResponseWriter, r *http.Request, query string, limit int) {
	res, err := s.svc.Search(r.Context(), query, memory.WithLimit(limit))
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	hits := make([]SearchHit, len(res.Matches))
	for i, m := range res.Matches {
		hits[i] = SearchHit{
			ID:         m.ID,
			Content:    m.Content,
			Category:   m.Category,
			Similarity: m.Similarity,
			CreatedAt:  memory.FormatTime(m.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: hits})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	// A non-numeric id cannot name a record, so it is reported the same way
	// as a missing one.
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Memory not found")
		return
	}

	deleted, err := s.svc.Delete(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Memory not found")
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: true, ID: id})
}

// queryLimit parses the optional ?limit= parameter. Absent means 0, which
// the service replaces with its default. It writes a 400 and returns false
// when the value is not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
		return 0, false
	}
	return n, true
}
