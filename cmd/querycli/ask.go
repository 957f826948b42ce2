package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
	natsqueue "github.com/kirillkom/research-query-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/resilience"
)

const defaultAskTimeout = 95 * time.Second

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a natural-language question from research data",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().String("scope", "", "restrict vector search to one research job")
	askCmd.Flags().Int("limit", 0, "maximum number of sources (1-50)")
	askCmd.Flags().Bool("json", false, "print the raw JSON result")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	req, err := askRequest(cmd, args)
	if err != nil {
		return err
	}
	natsURL, _ := cmd.Flags().GetString("nats-url")
	subject, _ := cmd.Flags().GetString("subject")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultAskTimeout
	}

	conn, err := natsqueue.Connect(natsURL, natsqueue.Options{Name: "querycli"})
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer conn.Close()

	cfg := resilience.DefaultConfig()
	cfg.BreakerEnabled = false
	client := natsqueue.NewQueryClient(conn, subject, resilience.NewExecutor(cfg))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	asJSON, _ := cmd.Flags().GetBool("json")
	return ask(ctx, client, req, cmd.OutOrStdout(), asJSON)
}

func askRequest(cmd *cobra.Command, args []string) (domain.QueryRequest, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return domain.QueryRequest{}, fmt.Errorf("question must not be empty")
	}
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 || limit > 50 {
		return domain.QueryRequest{}, fmt.Errorf("limit must be between 1 and 50")
	}
	return domain.QueryRequest{Question: question, ScopeID: scope, Limit: limit}, nil
}

func ask(ctx context.Context, queries ports.QueryService, req domain.QueryRequest, out io.Writer, asJSON bool) error {
	result, err := queries.Query(ctx, req)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(out, result)
}

func printResult(out io.Writer, result *domain.QueryResult) error {
	if _, err := fmt.Fprintln(out, result.Answer); err != nil {
		return err
	}
	if len(result.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, src := range result.Sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Fprintf(out, "  [%d] %s (%s, %.2f)\n", i+1, title, src.SourceType, src.RelevanceScore)
		if src.URL != "" && src.URL != title {
			fmt.Fprintf(out, "      %s\n", src.URL)
		}
	}
	return nil
}
