package memory

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresStore implements Store on a Postgres table. Vectors are REAL[]
// columns; similarity is still computed in Go, so no extension is needed.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// OpenPostgres connects with dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("memory postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory postgres: apply schema: %w", err)
	}

	logger.Debug("memory postgres: connected")
	return &PostgresStore{pool: pool, logger: logger, now: time.Now}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Insert stores a new record.
func (s *PostgresStore) Insert(ctx context.Context, rec NewRecord) (Record, error) {
	if rec.Category == "" {
		rec.Category = DefaultCategory
	}
	var embedding []float32
	if len(rec.Embedding) > 0 {
		embedding = rec.Embedding
	}

	now := s.now().UTC().Truncate(time.Microsecond)

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO memories (content, category, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id`,
		rec.Content, rec.Category, embedding, now,
	).Scan(&id)
	if err != nil {
		return Record{}, fmt.Errorf("memory postgres: insert memory: %w", err)
	}

	s.logger.Debug("memory postgres: stored memory",
		"id", id,
		"category", rec.Category,
		"content_len", len(rec.Content),
		"has_embedding", embedding != nil,
	)

	return Record{
		ID:        id,
		Content:   rec.Content,
		Category:  rec.Category,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Delete removes the record with the given id.
func (s *PostgresStore) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("memory postgres: delete %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns records newest first.
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if opts.Category != "" {
		where = append(where, "category = "+param(opts.Category))
	}
	if opts.Contains != "" {
		if opts.FoldCase {
			where = append(where, "strpos(lower(content), lower("+param(opts.Contains)+")) > 0")
		} else {
			where = append(where, "strpos(content, "+param(opts.Contains)+") > 0")
		}
	}

	query := `SELECT id, content, category, embedding, created_at, updated_at FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + param(opts.Limit)

	return s.query(ctx, query, args...)
}

// ScanWithEmbeddings returns all records that carry an embedding.
func (s *PostgresStore) ScanWithEmbeddings(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `
		SELECT id, content, category, embedding, created_at, updated_at
		FROM memories
		WHERE embedding IS NOT NULL`)
}

// Stats counts all records and those with embeddings.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM memories`,
	).Scan(&st.Total, &st.WithEmbeddings)
	if err != nil {
		return Stats{}, fmt.Errorf("memory postgres: stats: %w", err)
	}
	return st, nil
}

// EmbeddingDimension reads the length of the most recent stored vector.
func (s *PostgresStore) EmbeddingDimension(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT cardinality(embedding)
		FROM memories
		WHERE embedding IS NOT NULL
		ORDER BY id DESC
		LIMIT 1`,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memory postgres: embedding dimension: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory postgres: query memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Category, &rec.Embedding, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memory postgres: scan row: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory postgres: iterate rows: %w", err)
	}
	return records, nil
}

var _ Store = (*PostgresStore)(nil)
