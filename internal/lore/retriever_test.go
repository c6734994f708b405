package lore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector for every input, or a canned error.
type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

// fakeStore serves canned candidate sets and records the limits requested.
type fakeStore struct {
	dense       []Candidate
	sparse      []Candidate
	denseErr    error
	sparseErr   error
	denseLimit  int
	sparseLimit int
}

func (f *fakeStore) Insert(context.Context, *Chunk) (int64, error)  { return 0, nil }
func (f *fakeStore) Exists(context.Context, string) (bool, error)   { return false, nil }
func (f *fakeStore) Close() error                                   { return nil }

func (f *fakeStore) SearchDense(_ context.Context, _ []float32, _ string, limit int) ([]Candidate, error) {
	f.denseLimit = limit
	return f.dense, f.denseErr
}

func (f *fakeStore) SearchSparse(_ context.Context, _ string, limit int) ([]Candidate, error) {
	f.sparseLimit = limit
	return f.sparse, f.sparseErr
}

func newTestRetriever(t *testing.T, store *fakeStore) *Retriever {
	t.Helper()
	r, err := NewRetriever(&fakeEmbedder{vector: []float32{0.1, 0.2}}, store)
	require.NoError(t, err)
	return r
}

func TestRetrieve_FusesBothChannels(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		dense: []Candidate{
			{ID: 1, SourcePath: "a.md", Excerpt: "alpha", Score: 0.9},
			{ID: 2, SourcePath: "b.md", Excerpt: "beta", Score: 0.5},
		},
		sparse: []Candidate{
			{ID: 2, SourcePath: "b.md", Excerpt: "beta-lex", Score: 0.8},
			{ID: 3, SourcePath: "c.md", Excerpt: "gamma", Score: 0.7},
		},
	}

	hits, err := newTestRetriever(t, store).Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	byID := map[int64]SearchHit{}
	for _, h := range hits {
		byID[h.ID] = h
	}

	// Chunk 1: dense only — fused is 0.65 * dense.
	assert.InDelta(t, 0.65*0.9, byID[1].FusedScore, 1e-9)
	assert.Zero(t, byID[1].SparseScore)

	// Chunk 2: both channels.
	assert.InDelta(t, 0.65*0.5+0.35*0.8, byID[2].FusedScore, 1e-9)

	// Chunk 3: sparse only — fused is 0.35 * sparse.
	assert.InDelta(t, 0.35*0.7, byID[3].FusedScore, 1e-9)
	assert.Zero(t, byID[3].DenseScore)
}

func TestRetrieve_SparseOnlyMatchStillSurfaces(t *testing.T) {
	t.Parallel()

	// Zero vector similarity, lexical match only: the chunk must still
	// appear, scored 0.35 * sparse.
	store := &fakeStore{
		sparse: []Candidate{{ID: 7, SourcePath: "only.md", Excerpt: "term", Score: 0.6}},
	}

	hits, err := newTestRetriever(t, store).Retrieve(context.Background(), "term", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(7), hits[0].ID)
	assert.InDelta(t, 0.35*0.6, hits[0].FusedScore, 1e-9)
}

func TestRetrieve_RankedDescendingAndTruncated(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		dense: []Candidate{
			{ID: 1, Score: 0.2},
			{ID: 2, Score: 0.9},
			{ID: 3, Score: 0.5},
			{ID: 4, Score: 0.7},
		},
	}

	hits, err := newTestRetriever(t, store).Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Rank monotonicity: highest fused scores survive, in order.
	assert.Equal(t, int64(2), hits[0].ID)
	assert.Equal(t, int64(4), hits[1].ID)
	assert.GreaterOrEqual(t, hits[0].FusedScore, hits[1].FusedScore)
}

func TestRetrieve_OverfetchesTwiceK(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	_, err := newTestRetriever(t, store).Retrieve(context.Background(), "q", 6)
	require.NoError(t, err)
	assert.Equal(t, 12, store.denseLimit)
	assert.Equal(t, 12, store.sparseLimit)
}

func TestRetrieve_DenseExcerptPreferred(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		dense:  []Candidate{{ID: 1, Excerpt: "from dense", Score: 0.4}},
		sparse: []Candidate{{ID: 1, Excerpt: "from sparse", Score: 0.4}},
	}

	hits, err := newTestRetriever(t, store).Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "from dense", hits[0].Excerpt)
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&fakeEmbedder{err: errors.New("backend down")}, &fakeStore{})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query failed")
}

func TestRetrieve_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{sparseErr: errors.New("connection reset")}
	_, err := newTestRetriever(t, store).Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sparse search failed")
}

func TestNewRetriever_NilDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewRetriever(nil, &fakeStore{})
	assert.Error(t, err)

	_, err = NewRetriever(&fakeEmbedder{}, nil)
	assert.Error(t, err)
}

func TestValidateQuery(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateQuery("who forged the blade?"))
	assert.ErrorIs(t, ValidateQuery(""), ErrEmptyQuery)
	assert.ErrorIs(t, ValidateQuery("   \t"), ErrEmptyQuery)
	assert.ErrorIs(t, ValidateQuery(string(make([]byte, MaxQueryLen+1))), ErrQueryTooLong)
}

func TestClampK(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 6, ClampK(0))
	assert.Equal(t, 6, ClampK(-3))
	assert.Equal(t, 1, ClampK(1))
	assert.Equal(t, 20, ClampK(20))
	assert.Equal(t, 20, ClampK(50))
}

func TestValidateK(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateK(1))
	assert.NoError(t, ValidateK(6))
	assert.NoError(t, ValidateK(20))
	assert.ErrorIs(t, ValidateK(0), ErrKOutOfRange)
	assert.ErrorIs(t, ValidateK(-1), ErrKOutOfRange)
	assert.ErrorIs(t, ValidateK(21), ErrKOutOfRange)
}
