package memory

import "context"

// FallbackScore is the placeholder similarity given to every substring match.
// It says "matched", not how well.
const FallbackScore = 0.5

// Lister is the slice of Store the text matcher needs.
type Lister interface {
	List(ctx context.Context, opts ListOptions) ([]Record, error)
}

// TextMatcher ranks records by substring containment when vector search is
// not possible. Matching is case-sensitive unless FoldCase is set.
type TextMatcher struct {
	store    Lister
	foldCase bool
}

// NewTextMatcher creates a TextMatcher over store.
func NewTextMatcher(store Lister, foldCase bool) *TextMatcher {
	return &TextMatcher{store: store, foldCase: foldCase}
}

// Search returns up to limit records whose content contains query, newest
// first, each scored FallbackScore.
func (m *TextMatcher) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	records, err := m.store.List(ctx, ListOptions{
		Contains: query,
		FoldCase: m.foldCase,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, len(records))
	for i, rec := range records {
		matches[i] = Match{Record: rec, Similarity: FallbackScore}
	}
	return matches, nil
}
