package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/ncosentino/lore-bot/internal/answer"
	"github.com/ncosentino/lore-bot/internal/embedder"
	"github.com/ncosentino/lore-bot/internal/history"
	"github.com/ncosentino/lore-bot/internal/logging"
	"github.com/ncosentino/lore-bot/internal/lore"
	"github.com/ncosentino/lore-bot/internal/provider"
	"github.com/ncosentino/lore-bot/internal/server"
	"github.com/ncosentino/lore-bot/internal/tracing"
)

// NewServeCmd constructs the `lorebot serve` command, which starts the HTTP
// API over the knowledge base.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lorebot HTTP API",
		Long: `Start the lorebot HTTP server on localhost.

The server exposes hybrid search (GET /api/lore/lookup), question answering
(GET /api/lore/ask), query history (GET /api/lore/history), plus health,
readiness, and Prometheus metrics endpoints.

Examples:
  lorebot serve
  lorebot serve --port 9090
  MODEL_PROVIDER=azure lorebot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			if err := embedder.ValidateStartup(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			chunkStore, err := openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer chunkStore.Close()

			retriever, err := lore.NewRetriever(emb, chunkStore)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// The chat model is optional: without one the server still serves
			// lookups, and /api/lore/ask returns 503.
			var answerer *answer.Answerer
			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				log.Warn("chat model unavailable, ask endpoint disabled", slog.Any("error", err))
			} else {
				answerer, err = answer.New(retriever, chatModel)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}

			// Open the exchange history store. LOREBOT_HISTORY_DB overrides the
			// default path (~/.lorebot/history.db); "disabled" turns it off.
			var historyStore history.Store
			dbPath := os.Getenv("LOREBOT_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := history.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via LOREBOT_HISTORY_DB=disabled")
			}

			opts := server.Options{
				Lookup:  retriever,
				History: historyStore,
			}
			if answerer != nil {
				opts.Ask = answerer
			}

			srv, err := server.New(opts, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewPostgresPinger(chunkStore),
					server.NewEmbedderPinger(emb),
				},
				APIKey: os.Getenv("LOREBOT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
