package memory

import (
	"context"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// scoreChunk is the smallest slice of candidates worth a goroutine.
const scoreChunk = 256

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length, empty vectors and zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	// One sqrt of the product keeps score(v, v) and score(v, -v) exact.
	sim := dot / math.Sqrt(normA*normB)
	if math.IsNaN(sim) {
		return 0
	}
	// Clamp float error so self-similarity never reports 1.0000000002.
	return max(-1, min(1, sim))
}

// Scored pairs a candidate with its full-precision score.
type Scored struct {
	Record Record
	Score  float64
}

// Rank scores candidates against query, drops scores strictly below
// threshold, and returns at most limit results ordered by score descending.
// Equal scores keep listing order (newest first), so the result is
// deterministic for an unchanged candidate set. Scoring fans out across
// CPUs for large candidate sets; the only error is ctx cancellation.
func Rank(ctx context.Context, query []float32, candidates []Record, threshold float64, limit int) ([]Scored, error) {
	if limit <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(candidates))

	workers := min(runtime.GOMAXPROCS(0), (len(candidates)+scoreChunk-1)/scoreChunk)
	if workers <= 1 {
		for i := range candidates {
			scores[i] = Cosine(query, candidates[i].Embedding)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		per := (len(candidates) + workers - 1) / workers
		for start := 0; start < len(candidates); start += per {
			end := min(start+per, len(candidates))
			g.Go(func() error {
				for i := start; i < end; i++ {
					if i%scoreChunk == 0 {
						if err := gctx.Err(); err != nil {
							return err
						}
					}
					scores[i] = Cosine(query, candidates[i].Embedding)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := make([]Scored, 0, len(candidates))
	for i, rec := range candidates {
		if scores[i] < threshold {
			continue
		}
		kept = append(kept, Scored{Record: rec, Score: scores[i]})
	}

	slices.SortFunc(kept, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return newerFirst(a.Record, b.Record)
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, nil
}
