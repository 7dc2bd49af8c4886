package memory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/pi-llama/memoryd/internal/memoryd/embedding"
)

// newTestStore opens a SQLite store in a temp dir with a deterministic clock
// that advances one second per insert.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "memories.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	s.now = steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return s
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

// wordEmbedder is a bag-of-words embedder: each distinct lowercase word gets
// its own dimension on first sight, so texts sharing words point in similar
// directions without hash collisions.
type wordEmbedder struct {
	mu    sync.Mutex
	dim   int
	index map[string]int
	calls int
}

func newWordEmbedder(dim int) *wordEmbedder {
	return &wordEmbedder{dim: dim, index: make(map[string]int)}
}

func (w *wordEmbedder) Embed(_ context.Context, text string) embedding.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++

	vec := make([]float32, w.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, word := range words {
		i, ok := w.index[word]
		if !ok {
			i = len(w.index) % w.dim
			w.index[word] = i
		}
		vec[i]++
	}
	return embedding.Available(vec)
}

// unavailableEmbedder simulates a provider that is always down.
type unavailableEmbedder struct{}

func (unavailableEmbedder) Embed(context.Context, string) embedding.Result {
	return embedding.Unavailable(embedding.ErrDisabled)
}

// fixedEmbedder returns the vector registered for the exact text, or
// unavailable.
type fixedEmbedder map[string][]float32

func (f fixedEmbedder) Embed(_ context.Context, text string) embedding.Result {
	if v, ok := f[text]; ok {
		return embedding.Available(v)
	}
	return embedding.Unavailable(embedding.ErrNoData)
}
