package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/research-query-engine/internal/bootstrap"
	"github.com/kirillkom/research-query-engine/internal/config"
	natsqueue "github.com/kirillkom/research-query-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/research-query-engine/internal/observability/logging"
	"github.com/kirillkom/research-query-engine/internal/observability/metrics"
)

const serviceName = "query-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Fallbacks:       workerMetrics.Pipeline(),
		BreakerObserver: workerMetrics.Pipeline().ObserveBreakerState,
	})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	conn, err := natsqueue.Connect(cfg.NATSURL, natsqueue.Options{Name: serviceName})
	if err != nil {
		slog.Error("nats_connect_error", "error", err)
		os.Exit(1)
	}
	app.AddCloser(conn.Close)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_error", "error", err)
		}
	}()

	server := natsqueue.NewQueryServer(conn, natsqueue.ServerOptions{
		Subject:      cfg.NATSQuerySubject,
		QueueGroup:   cfg.NATSQueueGroup,
		Service:      serviceName,
		Concurrency:  cfg.WorkerConcurrency,
		QueryTimeout: time.Duration(cfg.QueryTimeoutSeconds) * time.Second,
		DrainTimeout: time.Duration(cfg.QueryTimeoutSeconds+5) * time.Second,
		Observer:     workerMetrics,
	})
	if err := server.Serve(ctx, app.Engine); err != nil {
		slog.Error("worker_serve_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
