// Package main is a command-line client that sends questions to query workers over NATS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "querycli",
	Short:         "Ask the research query engine questions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("nats-url", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	rootCmd.PersistentFlags().String("subject", envOr("NATS_QUERY_SUBJECT", "research.query"), "query request subject")
	rootCmd.PersistentFlags().Duration("timeout", 0, "overall request timeout (default 95s)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
