package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/research-query-engine/internal/adapters/mcp"
	"github.com/kirillkom/research-query-engine/internal/bootstrap"
	"github.com/kirillkom/research-query-engine/internal/config"
	"github.com/kirillkom/research-query-engine/internal/observability/logging"
)

const (
	serviceName = "query-mcp"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	stdio := server.NewStdioServer(mcpadapter.NewServer(app.Engine, version))
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	slog.Info("mcp_stdio_serving", "tool", mcpadapter.QueryToolName)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		slog.Error("mcp_serve_error", "error", err)
	}
}
