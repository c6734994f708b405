package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncosentino/lore-bot/internal/lore"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// memStore is an in-memory ChunkStore keyed by content hash.
type memStore struct {
	chunks    []lore.Chunk
	nextID    int64
	existsErr error
	insertErr error
}

func (m *memStore) Insert(_ context.Context, c *lore.Chunk) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	stored := *c
	stored.ID = m.nextID
	m.chunks = append(m.chunks, stored)
	return m.nextID, nil
}

func (m *memStore) Exists(_ context.Context, contentHash string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, c := range m.chunks {
		if c.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SearchDense(context.Context, []float32, string, int) ([]lore.Candidate, error) {
	return nil, nil
}

func (m *memStore) SearchSparse(context.Context, string, int) ([]lore.Candidate, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

func newTestPipeline(t *testing.T, store lore.ChunkStore, embedder lore.Embedder) *Pipeline {
	t.Helper()
	seg, err := lore.NewSegmenter(lore.SegmenterConfig{
		TargetTokens:  400,
		MaxTokens:     600,
		OverlapTokens: 50,
	})
	require.NoError(t, err)
	p, err := NewPipeline(seg, embedder, store)
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile_CreatesChunks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "guild.md", "# The Guild\n\nFounded in the third age by wandering scribes.\n\n## Charter\n\nMembers swear to record every tale they hear.\n")

	store := &memStore{}
	p := newTestPipeline(t, store, &fakeEmbedder{})

	fr, err := p.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, fr.Created)
	assert.Zero(t, fr.Skipped)
	require.Len(t, store.chunks, 2)

	for _, c := range store.chunks {
		assert.Equal(t, path, c.SourcePath)
		assert.NotEmpty(t, c.ContentHash)
		assert.Len(t, c.Embedding, 3)
	}
}

func TestIngestFile_SkipsAlreadyIngestedContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "city.md", "# The City\n\nA port city carved into sea cliffs.\n")

	store := &memStore{}
	embedder := &fakeEmbedder{}
	p := newTestPipeline(t, store, embedder)

	fr, err := p.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Created)

	// Second pass over identical content embeds nothing.
	fr, err = p.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, fr.Created)
	assert.Equal(t, 1, fr.Skipped)
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, store.chunks, 1)
}

func TestIngestFile_SkipsBlankContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "empty.md", "   \n\n\t\n")

	store := &memStore{}
	embedder := &fakeEmbedder{}
	p := newTestPipeline(t, store, embedder)

	fr, err := p.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, fr.Created)
	assert.Zero(t, embedder.calls)
	assert.Empty(t, store.chunks)
}

func TestIngestFile_EmbedderErrorAborts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "fail.md", "# Saga\n\nThe old king vanished at sea.\n")

	store := &memStore{}
	p := newTestPipeline(t, store, &fakeEmbedder{err: errors.New("backend down")})

	_, err := p.IngestFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding chunk")
	assert.Empty(t, store.chunks)
}

func TestIngestDirectory_WalksRecursively(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "top.md", "# Top\n\nFirst document.\n")
	writeFile(t, dir, filepath.Join("nested", "deep.md"), "# Deep\n\nSecond document.\n")
	writeFile(t, dir, "notes.txt", "ignored, not markdown")

	store := &memStore{}
	p := newTestPipeline(t, store, &fakeEmbedder{})

	result, err := p.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 2, result.Created)
	assert.Empty(t, result.Errors)
	assert.Positive(t, result.Elapsed)
}

func TestIngestDirectory_IsolatesPerFileFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# A\n\nAlpha lore.\n")
	writeFile(t, dir, "b.md", "# B\n\nBeta lore.\n")

	store := &memStore{insertErr: errors.New("disk full")}
	p := newTestPipeline(t, store, &fakeEmbedder{})

	result, err := p.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Zero(t, result.Created)
	assert.Len(t, result.Errors, 2)
}

func TestIngestDirectory_MissingDirectory(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &memStore{}, &fakeEmbedder{})
	_, err := p.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrDirNotFound)
}

func TestIngestDirectory_EmptyDirectory(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &memStore{}, &fakeEmbedder{})
	result, err := p.IngestDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, result.FilesProcessed)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)
}

func TestNewPipeline_NilDependencies(t *testing.T) {
	t.Parallel()

	seg, err := lore.NewSegmenter(lore.SegmenterConfig{TargetTokens: 400, MaxTokens: 600, OverlapTokens: 50})
	require.NoError(t, err)

	_, err = NewPipeline(nil, &fakeEmbedder{}, &memStore{})
	assert.Error(t, err)

	_, err = NewPipeline(seg, nil, &memStore{})
	assert.Error(t, err)

	_, err = NewPipeline(seg, &fakeEmbedder{}, nil)
	assert.Error(t, err)
}
