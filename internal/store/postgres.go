// Package store provides the Postgres-backed chunk store for the lore
// knowledge base. Chunks are persisted with their dense embedding (pgvector)
// and a generated tsvector column, so both retrieval channels are served
// from the same table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ncosentino/lore-bot/internal/lore"
)

// headlineOpts controls the shape of ts_headline excerpts returned by
// both search channels.
const headlineOpts = "MaxFragments=1, MinWords=15, MaxWords=40"

// Config holds the Postgres store configuration.
type Config struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// Dimension is the embedding vector dimension. The lore_chunks table
	// is created with this dimension; it must match the embedding backend.
	Dimension int
}

// Validate checks the configuration for obvious mistakes before any
// connection is attempted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("store: database URL must not be empty")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("store: embedding dimension must be positive, got %d", c.Dimension)
	}
	return nil
}

// PostgresStore implements lore.ChunkStore on top of Postgres with the
// pgvector extension.
type PostgresStore struct {
	// db is the underlying connection pool.
	db *sql.DB

	// dimension is the embedding dimension the schema was created with.
	dimension int
}

// Open connects to Postgres, verifies connectivity, and runs the schema
// migration.
func Open(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &PostgresStore{db: db, dimension: cfg.Dimension}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the extension, table, and indexes if they do not
// already exist. The tsvector column is generated from content so the
// sparse channel never goes stale.
func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		s.tableDDL(),
		`CREATE INDEX IF NOT EXISTS idx_lore_chunks_content_hash ON lore_chunks (content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_lore_chunks_tsv ON lore_chunks USING GIN (tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_lore_chunks_embedding ON lore_chunks
    USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, ddl := range stmts {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// tableDDL renders the lore_chunks table definition with the configured
// embedding dimension.
func (s *PostgresStore) tableDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lore_chunks (
    id           BIGSERIAL PRIMARY KEY,
    source_path  TEXT        NOT NULL,
    anchor_id    TEXT        NOT NULL,
    title        TEXT        NOT NULL DEFAULT '',
    headings     TEXT[]      NOT NULL DEFAULT '{}',
    content      TEXT        NOT NULL,
    tokens       INTEGER     NOT NULL,
    word_count   INTEGER     NOT NULL,
    links_to     TEXT[]      NOT NULL DEFAULT '{}',
    content_hash TEXT        NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    embedding    vector(%d)  NOT NULL,
    tsv          tsvector    GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
)`, s.dimension)
}

// Insert persists a chunk and returns its assigned id.
func (s *PostgresStore) Insert(ctx context.Context, c *lore.Chunk) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("store: chunk must not be nil")
	}
	if len(c.Embedding) != s.dimension {
		return 0, fmt.Errorf("store: embedding dimension %d does not match schema dimension %d",
			len(c.Embedding), s.dimension)
	}

	const q = `
INSERT INTO lore_chunks
    (source_path, anchor_id, title, headings, content, tokens, word_count,
     links_to, content_hash, updated_at, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector)
RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		c.SourcePath, c.AnchorID, c.Title, pq.Array(c.Headings),
		c.Content, c.Tokens, c.WordCount, pq.Array(c.LinksTo),
		c.ContentHash, c.UpdatedAt, vectorToString(c.Embedding),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert chunk: %w", err)
	}
	return id, nil
}

// Exists reports whether a chunk with the given content hash is already
// stored.
func (s *PostgresStore) Exists(ctx context.Context, contentHash string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM lore_chunks WHERE content_hash = $1)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, q, contentHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return exists, nil
}

// SearchDense returns the chunks nearest to queryVec by cosine
// similarity. queryText is used only for excerpt highlighting.
func (s *PostgresStore) SearchDense(ctx context.Context, queryVec []float32, queryText string, limit int) ([]lore.Candidate, error) {
	const q = `
SELECT id, source_path, anchor_id, title, headings,
       ts_headline('english', content, websearch_to_tsquery('english', $2), $4) AS excerpt,
       1 - (embedding <=> $1::vector) AS score
FROM   lore_chunks
ORDER  BY embedding <=> $1::vector
LIMIT  $3`

	rows, err := s.db.QueryContext(ctx, q, vectorToString(queryVec), queryText, limit, headlineOpts)
	if err != nil {
		return nil, fmt.Errorf("store: dense search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// SearchSparse returns the chunks ranked by full-text relevance to
// queryText. Chunks with zero lexical overlap are not returned.
func (s *PostgresStore) SearchSparse(ctx context.Context, queryText string, limit int) ([]lore.Candidate, error) {
	const q = `
SELECT id, source_path, anchor_id, title, headings,
       ts_headline('english', content, websearch_to_tsquery('english', $1), $3) AS excerpt,
       ts_rank(tsv, websearch_to_tsquery('english', $1)) AS score
FROM   lore_chunks
WHERE  tsv @@ websearch_to_tsquery('english', $1)
ORDER  BY score DESC
LIMIT  $2`

	rows, err := s.db.QueryContext(ctx, q, queryText, limit, headlineOpts)
	if err != nil {
		return nil, fmt.Errorf("store: sparse search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// Ping verifies database connectivity for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// scanCandidates drains a candidate result set produced by either
// search channel.
func scanCandidates(rows *sql.Rows) ([]lore.Candidate, error) {
	var out []lore.Candidate
	for rows.Next() {
		var c lore.Candidate
		if err := rows.Scan(
			&c.ID, &c.SourcePath, &c.AnchorID, &c.Title,
			pq.Array(&c.Headings), &c.Excerpt, &c.Score,
		); err != nil {
			return nil, fmt.Errorf("store: scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: candidate rows: %w", err)
	}
	return out, nil
}

// vectorToString converts a float32 slice to pgvector text format:
// [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
