package memory

import "context"

// Store is the durable record table. Implementations must be safe for
// concurrent use and acquire storage resources per call (database/sql and
// pgxpool hand out a connection per statement), so no caller ever holds a
// connection across an embedding request.
type Store interface {
	// Insert assigns a new id, stamps created_at and updated_at with the same
	// instant, and returns the stored record.
	Insert(ctx context.Context, rec NewRecord) (Record, error)

	// Delete removes the record and reports whether a row was removed.
	// Deleting a missing id returns false and no error.
	Delete(ctx context.Context, id int64) (bool, error)

	// List returns records newest first (created_at desc, then id desc),
	// filtered per opts and capped to opts.Limit. A non-positive limit
	// returns no records.
	List(ctx context.Context, opts ListOptions) ([]Record, error)

	// ScanWithEmbeddings returns every record carrying an embedding, in no
	// particular order.
	ScanWithEmbeddings(ctx context.Context) ([]Record, error)

	// Stats reports record counts.
	Stats(ctx context.Context) (Stats, error)

	// EmbeddingDimension returns the length of stored vectors, or 0 when no
	// record has an embedding.
	EmbeddingDimension(ctx context.Context) (int, error)

	Close() error
}

// ListOptions filters a listing.
type ListOptions struct {
	// Category restricts results to an exact category; empty means all.
	Category string

	// Contains restricts results to records whose content contains this
	// substring; empty means no restriction.
	Contains string

	// FoldCase makes Contains ASCII case-insensitive.
	FoldCase bool

	Limit int
}

// Stats summarizes the table.
type Stats struct {
	Total          int `json:"total"`
	WithEmbeddings int `json:"with_embeddings"`
}
