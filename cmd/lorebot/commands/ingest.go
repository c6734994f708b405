package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ncosentino/lore-bot/internal/embedder"
	"github.com/ncosentino/lore-bot/internal/ingest"
	"github.com/ncosentino/lore-bot/internal/logging"
)

// NewIngestCmd constructs the `lorebot ingest` command, which walks a
// directory of markdown files and indexes them into the chunk store.
func NewIngestCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a directory of markdown lore into the knowledge base",
		Long: `Walk a directory tree, segment every markdown file into token-budgeted
chunks, embed each chunk, and store it in Postgres for hybrid retrieval.

Re-running ingest is safe: chunks whose content is already indexed are
skipped by content hash, so only new or changed sections are embedded.

Required environment variables:
  DATABASE_URL         Postgres connection string (pgvector extension required)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Chunking budgets (optional):
  CHUNK_TARGET_TOKENS  Soft budget per chunk (default: 400)
  CHUNK_MAX_TOKENS     Hard ceiling before forced splits (default: 600)
  CHUNK_OVERLAP_TOKENS Context carried across splits (default: 50)

Examples:
  lorebot ingest --dir ./lore
  lorebot ingest --dir ~/campaign/worldbook`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if dir == "" {
				return fmt.Errorf("ingest: --dir is required")
			}

			if err := embedder.ValidateStartup(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))),
				slog.Int("dimensions", embeddingDimensions()),
			)

			chunkStore, err := openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer chunkStore.Close()
			log.Info("chunk store ready")

			segmenter, err := newSegmenter()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline, err := ingest.NewPipeline(segmenter, emb, chunkStore)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			result, err := pipeline.IngestDirectory(ctx, dir)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("files", result.FilesProcessed),
				slog.Int("created", result.Created),
				slog.Int("skipped", result.Skipped),
				slog.Int("errors", len(result.Errors)),
				slog.Duration("elapsed", result.Elapsed),
			)
			for _, e := range result.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", e)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("ingest: %d file(s) failed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of markdown files to ingest")

	return cmd
}
