package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/ncosentino/lore-bot/internal/answer"
	"github.com/ncosentino/lore-bot/internal/history"
	"github.com/ncosentino/lore-bot/internal/lore"
	"github.com/ncosentino/lore-bot/internal/provider"
	"github.com/ncosentino/lore-bot/internal/tracing"
)

// NewAskCmd constructs the `lorebot ask` command, which answers a single
// natural language question from the ingested lore.
func NewAskCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and get a cited answer from the knowledge base",
		Long: `Ask a natural language question over the ingested lore. The most relevant
chunks are retrieved with hybrid search and passed to the configured chat
model, which answers with source citations.

Examples:
  lorebot ask "who rules the eastern marches?"
  lorebot ask --k 10 "what happened at the sunken keep?"
  MODEL_PROVIDER=openai lorebot ask "summarise the river wars"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			if err := lore.ValidateK(k); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			// Langfuse tracing is opt-in; no-op when keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			retriever, closeRetriever, err := buildRetriever(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeRetriever()

			answerer, err := answer.New(retriever, chatModel)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			resp, err := answerer.Ask(ctx, question, k)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)

			recordAskHistory(cmd, resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 6, "Number of context chunks to retrieve (1-20)")

	return cmd
}

// recordAskHistory appends the exchange to the local history database.
// Best-effort: failures are warnings, never command errors.
func recordAskHistory(cmd *cobra.Command, resp *answer.Response) {
	dbPath := os.Getenv("LOREBOT_HISTORY_DB")
	if dbPath == "disabled" {
		return
	}
	if dbPath == "" {
		var err error
		dbPath, err = history.DefaultDBPath()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: history disabled: %v\n", err)
			return
		}
	}

	hs, err := history.Open(dbPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: history disabled: %v\n", err)
		return
	}
	defer hs.Close()

	ex := history.Exchange{
		Question:  resp.Question,
		Answer:    resp.Answer,
		Sources:   resp.SourcePaths(),
		CreatedAt: time.Now().UTC(),
	}
	if err := hs.Append(cmd.Context(), ex); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: recording history failed: %v\n", err)
	}
}
