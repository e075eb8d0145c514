// cmd/gainslog/app.go
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gainslog/internal/config"
	"gainslog/internal/estimation"
	"gainslog/internal/logstate"
	"gainslog/internal/metrics"
	"gainslog/internal/reconcile"
	"gainslog/internal/storage"
)

// app holds everything a command needs, wired from one Config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	storage  storage.Storage
	store    *logstate.Store
	flow     *reconcile.Flow
	registry *prometheus.Registry
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.driver != "" {
		cfg.Storage.Driver = opts.driver
	}
	if opts.dbPath != "" {
		cfg.Storage.DSN = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := newLogger(cfg.Log, logOut)

	st, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store := logstate.New(st, logstate.WithLogger(logger), logstate.WithMetrics(m))
	if err := store.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}

	client := estimation.NewClient(estimation.ClientConfig{
		BaseURL:   cfg.Estimation.BaseURL,
		APIKey:    cfg.Estimation.APIKey,
		TextPath:  cfg.Estimation.TextPath,
		ImagePath: cfg.Estimation.ImagePath,
		Timeout:   cfg.Estimation.Timeout,
	}, estimation.WithLogger(logger))

	orchestrator := estimation.NewOrchestrator(client,
		estimation.WithOrchestratorLogger(logger),
		estimation.WithMetrics(m))

	flow := reconcile.New(store, orchestrator,
		reconcile.WithLogger(logger),
		reconcile.WithPolicy(reconcile.Policy{LowConfidenceThreshold: cfg.Policy.LowConfidenceThreshold}))

	return &app{
		cfg:      cfg,
		logger:   logger,
		storage:  st,
		store:    store,
		flow:     flow,
		registry: registry,
	}, nil
}

func (a *app) Close() error {
	return a.storage.Close()
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
