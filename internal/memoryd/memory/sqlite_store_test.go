package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSQLiteStore_SatisfiesInterface(t *testing.T) {
	var s Store = newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil Store")
	}
}

func TestSQLiteStore_InsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, NewRecord{
		Content:   "The user's favorite color is blue",
		Category:  "preferences",
		Embedding: []float32{0.1, 0.2, 0.3},
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if rec.ID <= 0 {
		t.Errorf("expected positive id, got %d", rec.ID)
	}
	if !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", rec.CreatedAt, rec.UpdatedAt)
	}
	if !rec.HasEmbedding() {
		t.Error("expected HasEmbedding")
	}

	got, err := s.List(ctx, ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	r := got[0]
	if r.ID != rec.ID || r.Content != rec.Content || r.Category != "preferences" {
		t.Errorf("unexpected record %+v", r)
	}
	if len(r.Embedding) != 3 || r.Embedding[2] != 0.3 {
		t.Errorf("embedding not round-tripped: %v", r.Embedding)
	}
	if !r.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", r.CreatedAt, rec.CreatedAt)
	}
}

func TestSQLiteStore_InsertDefaultsCategory(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Insert(context.Background(), NewRecord{Content: "no category"})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if rec.Category != DefaultCategory {
		t.Errorf("expected %q, got %q", DefaultCategory, rec.Category)
	}
}

func TestSQLiteStore_NilEmbeddingStoredAsNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, NewRecord{Content: "plain", Embedding: []float32{}})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if rec.HasEmbedding() {
		t.Error("empty embedding must be stored as null")
	}

	var isNull bool
	if err := s.db.QueryRow(`SELECT embedding IS NULL FROM memories WHERE id = ?`, rec.ID).Scan(&isNull); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !isNull {
		t.Error("expected NULL embedding column")
	}
}

func TestSQLiteStore_IDsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := range 5 {
		rec, err := s.Insert(ctx, NewRecord{Content: fmt.Sprintf("memory %d", i)})
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
		if rec.ID <= last {
			t.Fatalf("id %d not greater than previous %d", rec.ID, last)
		}
		last = rec.ID
	}
}

func TestSQLiteStore_DeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, NewRecord{Content: "Memory to be deleted"})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	deleted, err := s.Delete(ctx, rec.ID)
	if err != nil || !deleted {
		t.Fatalf("first Delete() = %v, %v; want true, nil", deleted, err)
	}
	deleted, err = s.Delete(ctx, rec.ID)
	if err != nil || deleted {
		t.Fatalf("second Delete() = %v, %v; want false, nil", deleted, err)
	}

	deleted, err = s.Delete(ctx, 987654)
	if err != nil || deleted {
		t.Fatalf("Delete(never created) = %v, %v; want false, nil", deleted, err)
	}
}

func TestSQLiteStore_ListOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := range 6 {
		rec, err := s.Insert(ctx, NewRecord{Content: fmt.Sprintf("memory %d", i)})
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
		ids = append(ids, rec.ID)
	}

	all, err := s.List(ctx, ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("List(all): %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 records, got %d", len(all))
	}
	for i, rec := range all {
		if want := ids[len(ids)-1-i]; rec.ID != want {
			t.Errorf("position %d: id %d, want %d", i, rec.ID, want)
		}
	}

	for n := 0; n <= 7; n++ {
		got, err := s.List(ctx, ListOptions{Limit: n})
		if err != nil {
			t.Fatalf("List(limit=%d): %v", n, err)
		}
		if len(got) > n {
			t.Fatalf("List(limit=%d) returned %d records", n, len(got))
		}
		for i := range got {
			if got[i].ID != all[i].ID {
				t.Fatalf("List(limit=%d) is not a prefix of the full order at %d", n, i)
			}
		}
	}
}

func TestSQLiteStore_ListTiesBrokenByID(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	a, _ := s.Insert(ctx, NewRecord{Content: "first"})
	b, _ := s.Insert(ctx, NewRecord{Content: "second"})

	got, err := s.List(ctx, ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("expected [%d %d], got %+v", b.ID, a.ID, got)
	}
}

func TestSQLiteStore_ListCategoryFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, NewRecord{Content: "likes tea", Category: "preferences"})
	s.Insert(ctx, NewRecord{Content: "lives in Cluj", Category: "facts"})
	newest, _ := s.Insert(ctx, NewRecord{Content: "likes jazz", Category: "preferences"})

	got, err := s.List(ctx, ListOptions{Category: "preferences", Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != newest.ID {
		t.Fatalf("expected newest preferences record %d, got %+v", newest.ID, got)
	}

	got, err = s.List(ctx, ListOptions{Category: "Preferences", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("category filter must be exact, got %d records", len(got))
	}
}

func TestSQLiteStore_ListContains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, NewRecord{Content: "The user drives a Blue car"})
	s.Insert(ctx, NewRecord{Content: "the sky is blue"})
	s.Insert(ctx, NewRecord{Content: "grass is green"})
	s.Insert(ctx, NewRecord{Content: "100% sure_thing"})

	tests := []struct {
		name     string
		contains string
		fold     bool
		want     int
	}{
		{"case sensitive", "blue", false, 1},
		{"case folded", "blue", true, 2},
		{"no match", "purple", false, 0},
		{"like wildcards are literal", "%", false, 1},
		{"underscore is literal", "e_t", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, ListOptions{Contains: tt.contains, FoldCase: tt.fold, Limit: 10})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("expected %d matches, got %d", tt.want, len(got))
			}
			for _, rec := range got {
				content := rec.Content
				needle := tt.contains
				if tt.fold {
					content, needle = strings.ToLower(content), strings.ToLower(needle)
				}
				if !strings.Contains(content, needle) {
					t.Errorf("record %q does not contain %q", rec.Content, tt.contains)
				}
			}
		})
	}
}

func TestSQLiteStore_ScanWithEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	with, _ := s.Insert(ctx, NewRecord{Content: "has vector", Embedding: []float32{1, 0}})
	s.Insert(ctx, NewRecord{Content: "no vector"})

	got, err := s.ScanWithEmbeddings(ctx)
	if err != nil {
		t.Fatalf("ScanWithEmbeddings: %v", err)
	}
	if len(got) != 1 || got[0].ID != with.ID {
		t.Fatalf("expected only record %d, got %+v", with.ID, got)
	}
}

func TestSQLiteStore_StatsAndDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dim, err := s.EmbeddingDimension(ctx)
	if err != nil || dim != 0 {
		t.Fatalf("EmbeddingDimension on empty store = %d, %v", dim, err)
	}

	s.Insert(ctx, NewRecord{Content: "a", Embedding: []float32{1, 2, 3, 4}})
	s.Insert(ctx, NewRecord{Content: "b"})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 2 || st.WithEmbeddings != 1 {
		t.Errorf("unexpected stats %+v", st)
	}

	dim, err = s.EmbeddingDimension(ctx)
	if err != nil {
		t.Fatalf("EmbeddingDimension: %v", err)
	}
	if dim != 4 {
		t.Errorf("expected dimension 4, got %d", dim)
	}
}

func TestSQLiteStore_ReadsLegacyRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(`
		INSERT INTO memories (content, category, embedding, created_at, updated_at)
		VALUES ('legacy', 'general', '[0.5, 0.5]', '2024-05-01T10:11:12.345678', '2024-05-01T10:11:12.345678')`)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	got, err := s.List(ctx, ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	want := time.Date(2024, 5, 1, 10, 11, 12, 345678000, time.UTC)
	if !got[0].CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, want)
	}
	if len(got[0].Embedding) != 2 {
		t.Errorf("embedding = %v", got[0].Embedding)
	}
}

func TestSQLiteStore_ConcurrentInserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Insert(ctx, NewRecord{Content: fmt.Sprintf("concurrent %d", i)}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Insert: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 20 {
		t.Errorf("expected 20 records, got %d", st.Total)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:): %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Insert(ctx, NewRecord{Content: "ephemeral"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.List(ctx, ListOptions{Limit: 5})
	if err != nil || len(got) != 1 {
		t.Fatalf("List = %v, %v", got, err)
	}
}
