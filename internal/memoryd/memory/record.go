// Package memory is the semantic memory store: durable text records with
// optional embedding vectors, ranked by cosine similarity or, in degraded
// mode, by substring match.
package memory

import (
	"errors"
	"math"
	"time"
)

// DefaultCategory labels records saved without a category.
const DefaultCategory = "general"

// TimeLayout is the persisted timestamp format. It is fixed-width in UTC so
// that string order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// ErrNotFound is returned at the service boundary when a delete targets a
// record that does not exist.
var ErrNotFound = errors.New("memory: not found")

// Record is one stored memory.
type Record struct {
	ID        int64
	Content   string
	Category  string
	Embedding []float32 // nil when no embedding was available at save time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasEmbedding reports whether the record takes part in similarity search.
func (r Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// NewRecord is the input to Store.Insert.
type NewRecord struct {
	Content   string
	Category  string
	Embedding []float32
}

// Match is a search hit. Similarity is rounded to four decimals for display;
// ranking happens on the full-precision score before rounding.
type Match struct {
	Record
	Similarity float64
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// legacyLayout is the zone-less ISO form written by older deployments; it is
// read as UTC.
const legacyLayout = "2006-01-02T15:04:05.999999"

// ParseTime parses a TimeLayout, RFC 3339 or legacy zone-less timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	if t, lerr := time.ParseInLocation(legacyLayout, s, time.UTC); lerr == nil {
		return t, nil
	}
	return time.Time{}, err
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

// newerFirst orders records most recent first: created_at descending, then
// higher id first.
func newerFirst(a, b Record) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
