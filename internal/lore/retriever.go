package lore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ncosentino/lore-bot/internal/logging"
)

// Fusion weights combining the two retrieval channels into one ranking
// signal. Fixed design constants, not tunable at call time.
const (
	denseWeight  = 0.65
	sparseWeight = 0.35
)

// overfetchFactor is how many candidates each channel returns relative to k,
// so the fusion step has enough material to rank.
const overfetchFactor = 2

// Retriever fuses dense (vector similarity) and sparse (lexical rank)
// candidates from a ChunkStore into a single ranked hit list.
// It is stateless per call and safe for concurrent use.
type Retriever struct {
	// embedder converts the query text to a dense vector.
	embedder Embedder

	// store serves both retrieval channels.
	store ChunkStore
}

// NewRetriever constructs a Retriever from the given Embedder and ChunkStore.
func NewRetriever(embedder Embedder, store ChunkStore) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("lore: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("lore: store must not be nil")
	}
	return &Retriever{embedder: embedder, store: store}, nil
}

// Retrieve embeds the query, over-fetches 2k candidates from each channel,
// outer-joins them by chunk id, and returns the top-k hits by fused score.
// Errors from the embedder or the store propagate to the caller unretried.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]SearchHit, error) {
	k = ClampK(k)
	log := logging.FromContext(ctx)

	embedStart := time.Now()
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("lore: embedding query failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("lore: embedder returned no vector for query")
	}
	log.Debug("query embedded",
		slog.Duration("duration", time.Since(embedStart)),
		slog.Int("dimensions", len(vectors[0])),
	)

	limit := k * overfetchFactor

	searchStart := time.Now()
	dense, err := r.store.SearchDense(ctx, vectors[0], query, limit)
	if err != nil {
		return nil, fmt.Errorf("lore: dense search failed: %w", err)
	}
	sparse, err := r.store.SearchSparse(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lore: sparse search failed: %w", err)
	}
	log.Debug("candidate retrieval complete",
		slog.Duration("duration", time.Since(searchStart)),
		slog.Int("dense", len(dense)),
		slog.Int("sparse", len(sparse)),
	)

	hits := fuse(dense, sparse)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// fuse outer-joins the two candidate sets by chunk id and ranks the pool by
// the weighted sum of channel scores. A chunk present in only one channel
// keeps a zero for the other — membership in either channel is enough to
// stay in the pool. The sort is stable so ties keep the store's row order.
func fuse(dense, sparse []Candidate) []SearchHit {
	byID := make(map[int64]*SearchHit, len(dense)+len(sparse))
	var order []int64

	for _, c := range dense {
		h := &SearchHit{
			ID:         c.ID,
			SourcePath: c.SourcePath,
			AnchorID:   c.AnchorID,
			Title:      c.Title,
			Headings:   c.Headings,
			Excerpt:    c.Excerpt,
			DenseScore: c.Score,
		}
		byID[c.ID] = h
		order = append(order, c.ID)
	}

	for _, c := range sparse {
		if h, ok := byID[c.ID]; ok {
			h.SparseScore = c.Score
			if h.Excerpt == "" {
				h.Excerpt = c.Excerpt
			}
			continue
		}
		byID[c.ID] = &SearchHit{
			ID:          c.ID,
			SourcePath:  c.SourcePath,
			AnchorID:    c.AnchorID,
			Title:       c.Title,
			Headings:    c.Headings,
			Excerpt:     c.Excerpt,
			SparseScore: c.Score,
		}
		order = append(order, c.ID)
	}

	hits := make([]SearchHit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		h.FusedScore = denseWeight*h.DenseScore + sparseWeight*h.SparseScore
		hits = append(hits, *h)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].FusedScore > hits[j].FusedScore
	})
	return hits
}
