// Command lorebot is the entry point for the lore knowledge base.
// It ingests markdown lore documents into a hybrid-search store and answers
// questions over them, via a CLI (Cobra) or an HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/ncosentino/lore-bot/cmd/lorebot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
