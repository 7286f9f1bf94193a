package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"healthwire/internal/config"
	"healthwire/internal/logger"
	"healthwire/internal/pipeline"
	"healthwire/internal/server"
)

// NewServeCmd creates the serve command for the trigger API
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger API",
		Long: `Start an HTTP server that exposes:
  GET  /health                health check including the database
  GET  /api/status            article count and running pipelines
  POST /api/runs/ingestion    start an ingestion run (202, or 409 if running)
  POST /api/runs/viewpoints   start a viewpoint run
  POST /api/runs/roundtable   start a roundtable run
  GET  /metrics               Prometheus metrics

Set server.admin_api_key (or ADMIN_API_KEY) to require a bearer key on /api/runs.

Examples:
  healthwire serve
  healthwire serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(parent context.Context, port int, host string) error {
	log := logger.Get()
	cfg := config.Get()

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\nRun 'healthwire migrate up' to initialize the database schema", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := buildPipeline(ctx, db, pipeline.NewMetrics(registry))
	if err != nil {
		return err
	}

	srv := server.New(db, p, registry, serverCfg)
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", fmt.Sprintf("http://%s:%d", serverCfg.Host, serverCfg.Port))
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
