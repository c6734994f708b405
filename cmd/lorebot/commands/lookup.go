package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ncosentino/lore-bot/internal/lore"
)

// NewLookupCmd constructs the `lorebot lookup` command, which runs a single
// hybrid search and prints the ranked hits.
func NewLookupCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "lookup [query]",
		Short: "Search the knowledge base and print the ranked hits",
		Long: `Run a hybrid dense+full-text search over the ingested lore and print
the ranked hits with their sources and scores.

Examples:
  lorebot lookup "the sunken keep"
  lorebot lookup --k 10 "river trade routes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			if err := lore.ValidateQuery(query); err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			if err := lore.ValidateK(k); err != nil {
				return fmt.Errorf("lookup: %w", err)
			}

			retriever, closeRetriever, err := buildRetriever(ctx)
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			defer closeRetriever()

			hits, err := retriever.Retrieve(ctx, query, k)
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}

			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}

			out := cmd.OutOrStdout()
			for i, hit := range hits {
				fmt.Fprintf(out, "%d. %s (%s) score=%.3f\n", i+1, hit.Title, hit.SourcePath, hit.FusedScore)
				if len(hit.Headings) > 0 {
					fmt.Fprintf(out, "   section: %s\n", strings.Join(hit.Headings, " > "))
				}
				if hit.Excerpt != "" {
					fmt.Fprintf(out, "   %s\n", hit.Excerpt)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 6, "Number of hits to return (1-20)")

	return cmd
}
