package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "docsbot",
		Short: "Documentation assistant for Discord",
		Long: `docsbot answers documentation questions on Discord. It mirrors the docs
corpus, indexes it into a vector store, and drives a hosted assistant to
answer one-off commands, reply chains and conversation threads.`,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (defaults to CONFIG_PATH, then ./config.toml)")
	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFIG_PATH")
}
