// Package lore defines the core data model and contracts for the lore-bot
// knowledge base: chunks, search hits, and the interfaces for chunk storage
// and embedding. Concrete implementations (Postgres, OpenAI, Ollama, etc.)
// satisfy these interfaces so the pipeline and retriever never depend on a
// specific backend.
package lore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxQueryLen is the maximum accepted length, in characters, of a search
// query or question. Longer inputs are rejected before any external call.
const MaxQueryLen = 500

// Bounds for the caller-supplied result count k.
const (
	// MinK and MaxK bound an explicitly supplied result count.
	MinK = 1
	MaxK = 20

	// DefaultK is the result count used when the caller supplies none.
	DefaultK = 6
)

// Validation errors surfaced to API callers as client errors, never as
// internal failures.
var (
	// ErrEmptyQuery is returned when a query or question is empty or
	// whitespace-only.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrQueryTooLong is returned when a query or question exceeds MaxQueryLen.
	ErrQueryTooLong = fmt.Errorf("query must be %d characters or less", MaxQueryLen)

	// ErrKOutOfRange is returned when an explicitly supplied result count is
	// outside [MinK, MaxK].
	ErrKOutOfRange = fmt.Errorf("k must be between %d and %d", MinK, MaxK)
)

// Chunk is the atomic indexed unit: a bounded, independently embeddable
// passage of a source document.
type Chunk struct {
	// ID is assigned by the store on insert. Zero until persisted.
	ID int64

	// SourcePath identifies the originating document (e.g. a file path).
	// Not unique — one document yields many chunks.
	SourcePath string

	// AnchorID is derived from the nearest enclosing heading title
	// (slugified) for deep-linking back into the source. Empty if the
	// chunk precedes any heading.
	AnchorID string

	// Title is the nearest enclosing heading text, or empty.
	Title string

	// Headings is the heading ancestry path to this chunk. The current
	// segmenter captures only the immediate title.
	Headings []string

	// Content is the chunk's normalized text. Never empty at persistence time.
	Content string

	// Tokens is the estimated token count (characters / 4).
	Tokens int

	// WordCount is the whitespace-split word count.
	WordCount int

	// LinksTo holds outbound references. Not populated by the segmenter;
	// reserved for a link-extraction collaborator.
	LinksTo []string

	// UpdatedAt is set at chunk-creation time.
	UpdatedAt time.Time

	// Embedding is the dense vector for this chunk. Required before
	// persistence; its length must equal the store's configured dimension.
	Embedding []float32

	// ContentHash is the fingerprint of Content, used as the idempotency key.
	ContentHash string
}

// SearchHit is a transient, read-only projection returned by retrieval.
// It exists only for the duration of a single query.
type SearchHit struct {
	// ID is the chunk's store-assigned identifier.
	ID int64 `json:"id"`

	// SourcePath is the originating document path.
	SourcePath string `json:"sourcePath"`

	// AnchorID deep-links into the source document. May be empty.
	AnchorID string `json:"anchorId,omitempty"`

	// Title is the nearest enclosing heading. May be empty.
	Title string `json:"title,omitempty"`

	// Headings is the heading ancestry path. May be empty.
	Headings []string `json:"headings,omitempty"`

	// Excerpt is a lexically-highlighted fragment of the chunk focused on
	// query-term proximity, produced by the store's text-search capability.
	Excerpt string `json:"excerpt"`

	// DenseScore is the vector similarity in [0,1]; 0 if the chunk was not
	// in the dense candidate set.
	DenseScore float64 `json:"denseScore"`

	// SparseScore is the lexical rank score; 0 if the chunk was not in the
	// sparse candidate set.
	SparseScore float64 `json:"sparseScore"`

	// FusedScore is the combined ranking signal the results are ordered by.
	FusedScore float64 `json:"fusedScore"`
}

// Candidate is one row returned by a single retrieval channel (dense or
// sparse) before fusion.
type Candidate struct {
	// ID is the chunk's store-assigned identifier.
	ID int64
	// SourcePath is the originating document path.
	SourcePath string
	// AnchorID deep-links into the source document.
	AnchorID string
	// Title is the nearest enclosing heading.
	Title string
	// Headings is the heading ancestry path.
	Headings []string
	// Excerpt is the highlighted fragment generated by the store.
	Excerpt string
	// Score is the channel's own score: similarity for dense, lexical rank
	// for sparse.
	Score float64
}

// ChunkStore persists chunks with their vectors and serves the two retrieval
// channels. Implementations must be safe to call from multiple goroutines.
type ChunkStore interface {
	// Insert persists a chunk (with embedding and content hash already set)
	// and returns the store-assigned id.
	Insert(ctx context.Context, c *Chunk) (int64, error)

	// Exists reports whether a chunk with the given content hash is already
	// stored.
	Exists(ctx context.Context, contentHash string) (bool, error)

	// SearchDense returns the limit chunks with smallest vector distance to
	// queryVec, scored as 1 - distance. queryText is used only to generate
	// the highlighted excerpt for each row.
	SearchDense(ctx context.Context, queryVec []float32, queryText string, limit int) ([]Candidate, error)

	// SearchSparse returns the limit chunks with highest lexical relevance
	// to queryText, scored by the store's ranking function.
	SearchSparse(ctx context.Context, queryText string, limit int) ([]Candidate, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines, must reject
// empty input, and must fail (not truncate) on over-long input.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ValidateQuery rejects empty/whitespace-only queries and queries longer
// than MaxQueryLen. Called before any external work is done.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return ErrEmptyQuery
	}
	if len(q) > MaxQueryLen {
		return ErrQueryTooLong
	}
	return nil
}

// ValidateK rejects an explicitly supplied result count outside [MinK, MaxK].
// Callers that allow k to be omitted substitute DefaultK instead of calling
// this with a zero value.
func ValidateK(k int) error {
	if k < MinK || k > MaxK {
		return ErrKOutOfRange
	}
	return nil
}

// ClampK normalizes a result count to the [MinK, MaxK] range, substituting
// DefaultK when k is zero or negative. Used as an internal safety net by the
// retriever; request entry points validate explicit values with ValidateK
// and reject out-of-range input instead of silently adjusting it.
func ClampK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}
