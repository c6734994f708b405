// Package ingest implements the lore ingestion pipeline. It walks a
// directory of Markdown documents, segments each file into chunks,
// embeds the chunks, and inserts them into the chunk store. Files whose
// content has already been ingested are skipped by content hash.
// This pipeline is invoked by the `lorebot ingest` CLI command.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncosentino/lore-bot/internal/logging"
	"github.com/ncosentino/lore-bot/internal/lore"
)

// ErrDirNotFound is returned when the ingestion root directory does not
// exist or is not a directory.
var ErrDirNotFound = errors.New("ingest: directory not found")

// FileResult reports the outcome of ingesting a single file.
type FileResult struct {
	// Created is the number of chunks embedded and inserted.
	Created int

	// Skipped is the number of chunks skipped because their content
	// hash already exists in the store, or because they were blank.
	Skipped int
}

// Result aggregates the outcome of a directory ingestion run.
type Result struct {
	// FilesProcessed is the number of Markdown files visited.
	FilesProcessed int

	// Created is the total number of chunks inserted across all files.
	Created int

	// Skipped is the total number of chunks skipped across all files.
	Skipped int

	// Errors holds one message per file that failed. A failed file does
	// not abort the run; its chunks are simply absent from the store.
	Errors []string

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// Pipeline orchestrates the walk → segment → embed → insert flow over a
// directory of Markdown documents.
type Pipeline struct {
	// segmenter splits document content into chunks.
	segmenter *lore.Segmenter

	// embedder converts chunk content into dense vector embeddings.
	embedder lore.Embedder

	// store persists the embedded chunks.
	store lore.ChunkStore
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(segmenter *lore.Segmenter, embedder lore.Embedder, store lore.ChunkStore) (*Pipeline, error) {
	if segmenter == nil {
		return nil, fmt.Errorf("ingest: segmenter must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}

	return &Pipeline{
		segmenter: segmenter,
		embedder:  embedder,
		store:     store,
	}, nil
}

// IngestDirectory walks dir recursively, ingesting every .md file found.
// A file that fails to ingest is recorded in Result.Errors and the run
// continues with the next file. The directory itself must exist; a
// missing directory fails the whole run before any file is touched.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (Result, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrDirNotFound, dir)
	}

	var result Result
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result.FilesProcessed++
		fr, err := p.IngestFile(ctx, path)
		if err != nil {
			log.Warn("file ingestion failed", "path", path, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		result.Created += fr.Created
		result.Skipped += fr.Skipped
		return nil
	})
	if walkErr != nil {
		return Result{}, fmt.Errorf("ingest: walking %s: %w", dir, walkErr)
	}

	result.Elapsed = time.Since(start)
	log.Info("ingestion run complete",
		"files", result.FilesProcessed,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// IngestFile segments, embeds, and inserts a single Markdown file.
// Chunks that are blank after segmentation, or whose content hash is
// already present in the store, are skipped without embedding.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (FileResult, error) {
	var fr FileResult

	raw, err := os.ReadFile(path)
	if err != nil {
		return fr, fmt.Errorf("ingest: reading %s: %w", path, err)
	}

	chunks := p.segmenter.Segment(path, string(raw))
	for i := range chunks {
		chunk := &chunks[i]

		if strings.TrimSpace(chunk.Content) == "" {
			fr.Skipped++
			continue
		}

		chunk.ContentHash = lore.Fingerprint(chunk.Content)
		exists, err := p.store.Exists(ctx, chunk.ContentHash)
		if err != nil {
			return fr, fmt.Errorf("ingest: hash lookup for %s: %w", path, err)
		}
		if exists {
			fr.Skipped++
			continue
		}

		vectors, err := p.embedder.Embed(ctx, []string{chunk.Content})
		if err != nil {
			return fr, fmt.Errorf("ingest: embedding chunk %q of %s: %w", chunk.AnchorID, path, err)
		}
		if len(vectors) != 1 {
			return fr, fmt.Errorf("ingest: embedder returned %d vectors for one chunk", len(vectors))
		}
		chunk.Embedding = vectors[0]

		if _, err := p.store.Insert(ctx, chunk); err != nil {
			return fr, fmt.Errorf("ingest: inserting chunk %q of %s: %w", chunk.AnchorID, path, err)
		}
		fr.Created++
	}

	return fr, nil
}
