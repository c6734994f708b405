// Package commands defines all Cobra CLI commands for the lorebot binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ncosentino/lore-bot/internal/audit"
	"github.com/ncosentino/lore-bot/internal/config"
	"github.com/ncosentino/lore-bot/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lorebot",
		Short: "lorebot — a retrieval-augmented knowledge base for markdown lore",
		Long: `lorebot indexes directories of markdown lore documents into a Postgres
store with pgvector, then answers questions over them with hybrid
dense+full-text retrieval and an LLM.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.lorebot/config.yaml).
See 'lorebot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load a local .env file if present; real env vars win.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.lorebot/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewLookupCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
