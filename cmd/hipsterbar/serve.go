package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/clients"
	"hipsterbar/internal/config"
	"hipsterbar/internal/game"
	"hipsterbar/internal/metrics"
	"hipsterbar/internal/picker"
	"hipsterbar/internal/storage"
	"hipsterbar/internal/telemetry"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context(), config.FromContext(cmd.Context()))
		},
	}
}

func newService(cfg *config.Config, repo storage.Repository, logger *slog.Logger, m *metrics.Metrics, hub *game.Hub) game.Service {
	p, ok := picker.ByName(cfg.Picker)
	if !ok {
		logger.Warn("unknown picker, using random", "component", programName, "picker", cfg.Picker)
		p = picker.NewRandom()
	}
	opts := game.Options{
		Picker:        p,
		Metrics:       m,
		Hub:           hub,
		Logger:        logger,
		DefaultQuota:  cfg.DefaultQuota,
		DefaultPolicy: bar.SubmissionPolicy(cfg.DefaultPolicy),
		CreateRate:    cfg.CreateRateLimit,
		CreateBurst:   cfg.CreateRateBurst,
	}
	if cfg.OEmbedURL != "" {
		opts.Metadata = clients.NewVideoClient(cfg.OEmbedURL, cfg.OEmbedTimeout)
	}
	return game.NewService(repo, opts)
}

func serveRun(ctx context.Context, cfg *config.Config) error {
	logger := commonRun(cfg)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, version, logger)
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	hub := game.NewHub(m)
	defer hub.Close()

	svc := newService(cfg, repo, logger, m, hub)
	router := game.NewHandler(svc, hub, logger).Routes()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "component", programName, "addr", cfg.ListenAddr, "storage", cfg.Storage)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down", "component", programName)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Event streams never finish on their own; close them before draining.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "component", programName, "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown", "component", programName, "error", err)
	}
	return nil
}
