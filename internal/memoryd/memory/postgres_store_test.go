package memory

import (
	"context"
	"os"
	"testing"
	"time"
)

// newPostgresTestStore connects to MEMORYD_TEST_POSTGRES_DSN and empties the
// memories table. Tests are skipped when the variable is unset.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("MEMORYD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEMORYD_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := OpenPostgres(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.pool.Exec(ctx, `TRUNCATE memories RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	s.now = steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return s
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, NewRecord{Content: "likes tea", Category: "preferences", Embedding: []float32{1, 0, 0}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	b, err := s.Insert(ctx, NewRecord{Content: "Likes Jazz"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if b.ID <= a.ID {
		t.Errorf("ids not increasing: %d then %d", a.ID, b.ID)
	}
	if b.Category != DefaultCategory {
		t.Errorf("category = %q", b.Category)
	}

	all, err := s.List(ctx, ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != b.ID || all[1].ID != a.ID {
		t.Fatalf("unexpected order %+v", all)
	}
	if !all[1].CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("created_at = %v, want %v", all[1].CreatedAt, a.CreatedAt)
	}
	if len(all[1].Embedding) != 3 || all[0].HasEmbedding() {
		t.Errorf("embeddings not round-tripped: %v / %v", all[1].Embedding, all[0].Embedding)
	}

	got, _ := s.List(ctx, ListOptions{Contains: "likes", Limit: 10})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("case-sensitive contains: %+v", got)
	}
	got, _ = s.List(ctx, ListOptions{Contains: "likes", FoldCase: true, Limit: 10})
	if len(got) != 2 {
		t.Errorf("folded contains: %d results", len(got))
	}
	got, _ = s.List(ctx, ListOptions{Category: "preferences", Limit: 10})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("category filter: %+v", got)
	}

	scanned, err := s.ScanWithEmbeddings(ctx)
	if err != nil || len(scanned) != 1 {
		t.Errorf("ScanWithEmbeddings = %+v, %v", scanned, err)
	}

	st, err := s.Stats(ctx)
	if err != nil || st.Total != 2 || st.WithEmbeddings != 1 {
		t.Errorf("Stats = %+v, %v", st, err)
	}
	dim, err := s.EmbeddingDimension(ctx)
	if err != nil || dim != 3 {
		t.Errorf("EmbeddingDimension = %d, %v", dim, err)
	}

	if ok, err := s.Delete(ctx, a.ID); err != nil || !ok {
		t.Errorf("Delete = %v, %v", ok, err)
	}
	if ok, err := s.Delete(ctx, a.ID); err != nil || ok {
		t.Errorf("second Delete = %v, %v", ok, err)
	}
}
