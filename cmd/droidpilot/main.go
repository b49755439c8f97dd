package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "droidpilot",
		Short:   "DroidPilot — LLM-driven Android automation agent with a semantic response cache",
		Version: version,
	}

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newCacheCmd(),
		newHistoryCmd(),
		newBudgetCmd(),
		newToolsCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
