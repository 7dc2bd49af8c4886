package memory

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore implements Store on a single SQLite file (or ":memory:").
// Embeddings are stored as JSON arrays in a TEXT column, matching the
// layout earlier versions of the service wrote.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. If logger is nil, slog.Default is used.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: open %s: %w", path, err)
	}

	// SQLite is single-writer. One shared connection serializes concurrent
	// callers in database/sql instead of contending for the file lock, and
	// keeps a ":memory:" database alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("memory sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory sqlite: apply schema: %w", err)
	}

	logger.Debug("memory sqlite: opened", "path", path)
	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert stores a new record.
func (s *SQLiteStore) Insert(ctx context.Context, rec NewRecord) (Record, error) {
	var embeddingJSON []byte
	if len(rec.Embedding) > 0 {
		var err error
		embeddingJSON, err = json.Marshal(rec.Embedding)
		if err != nil {
			return Record{}, fmt.Errorf("memory sqlite: marshal embedding: %w", err)
		}
	}
	if rec.Category == "" {
		rec.Category = DefaultCategory
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	ts := FormatTime(now)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (content, category, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Content, rec.Category, nullableText(embeddingJSON), ts, ts,
	)
	if err != nil {
		return Record{}, fmt.Errorf("memory sqlite: insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("memory sqlite: last insert id: %w", err)
	}

	s.logger.Debug("memory sqlite: stored memory",
		"id", id,
		"category", rec.Category,
		"content_len", len(rec.Content),
		"has_embedding", embeddingJSON != nil,
	)

	var embedding []float32
	if embeddingJSON != nil {
		embedding = rec.Embedding
	}
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
func (s *SQLiteStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("memory sqlite: delete %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("memory sqlite: rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Contains != "" {
		// instr is case-sensitive, unlike LIKE.
		if opts.FoldCase {
			where = append(where, "instr(lower(content), lower(?)) > 0")
		} else {
			where = append(where, "instr(content, ?) > 0")
		}
		args = append(args, opts.Contains)
	}

	query := `SELECT id, content, category, embedding, created_at, updated_at FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, opts.Limit)

	return s.query(ctx, query, args...)
}

// ScanWithEmbeddings returns all records that carry an embedding.
func (s *SQLiteStore) ScanWithEmbeddings(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `
		SELECT id, content, category, embedding, created_at, updated_at
		FROM memories
		WHERE embedding IS NOT NULL`)
}

// Stats counts all records and those with embeddings.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM memories`,
	).Scan(&st.Total, &st.WithEmbeddings)
	if err != nil {
		return Stats{}, fmt.Errorf("memory sqlite: stats: %w", err)
	}
	return st, nil
}

// EmbeddingDimension reads the length of the most recent stored vector.
func (s *SQLiteStore) EmbeddingDimension(ctx context.Context) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT json_array_length(embedding)
		FROM memories
		WHERE embedding IS NOT NULL
		ORDER BY id DESC
		LIMIT 1`,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memory sqlite: embedding dimension: %w", err)
	}
	return int(n.Int64), nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: query memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("memory sqlite: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory sqlite: iterate rows: %w", err)
	}
	return records, nil
}

func scanSQLiteRecord(rows *sql.Rows) (Record, error) {
	var (
		rec           Record
		embeddingJSON sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := rows.Scan(&rec.ID, &rec.Content, &rec.Category, &embeddingJSON, &createdAt, &updatedAt); err != nil {
		return Record{}, fmt.Errorf("scan row: %w", err)
	}

	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &rec.Embedding); err != nil {
			return Record{}, fmt.Errorf("unmarshal embedding of %d: %w", rec.ID, err)
		}
	}

	var err error
	if rec.CreatedAt, err = ParseTime(createdAt); err != nil {
		return Record{}, fmt.Errorf("parse created_at of %d: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return Record{}, fmt.Errorf("parse updated_at of %d: %w", rec.ID, err)
	}
	return rec, nil
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

var _ Store = (*SQLiteStore)(nil)
