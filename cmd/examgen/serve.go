package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/config"
	"github.com/pavelanni/examgen/internal/document"
	"github.com/pavelanni/examgen/internal/handler"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/metrics"
	"github.com/pavelanni/examgen/internal/pipeline"
	"github.com/pavelanni/examgen/internal/retention"
	"github.com/pavelanni/examgen/internal/storage"
	"github.com/pavelanni/examgen/internal/store"
	"github.com/pavelanni/examgen/internal/tracing"
)

// app is the wired set of long-lived components shared by serve and generate.
type app struct {
	db      *store.Store
	storage storage.Store
	metrics *metrics.Metrics
	service *pipeline.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageMinIO:
		st, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("open minio storage: %w", err)
		}
		return st, nil
	default:
		st, err := storage.NewLocal(cfg.GeneratedDir)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		return st, nil
	}
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := appI18n.Init(cfg.Language); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	a := &app{metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	if v, err := db.SchemaVersion(ctx); err == nil {
		slog.Debug("database ready", "path", cfg.DBPath, "schema", v)
	}

	if a.storage, err = openStorage(ctx, cfg); err != nil {
		return nil, err
	}

	deps := llm.Deps{Recorder: db, Observer: a.metrics}
	if cfg.RedisURL != "" {
		cache, err := llm.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.Cache = cache
		a.closers = append(a.closers, cache.Close)
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM, deps)
	if err != nil {
		return nil, err
	}

	renderer := document.NewRenderer(a.storage, db)
	a.service = pipeline.New(llm.NewGateway(provider, cfg.LLMTimeout), renderer, cfg.Pipeline)
	ok = true
	return a, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.TraceExporter, version, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Retention > 0 {
		go retention.New(a.db, a.storage, a.metrics).Run(ctx, cfg.Retention, cfg.RetentionInterval)
	}

	h := handler.New(handler.Deps{
		Service: a.service,
		Files:   a.storage,
		Health:  a.db,
		Metrics: a.metrics,
	}, handler.Config{
		StaticDir:      cfg.StaticDir,
		LangDir:        langDir(cfg),
		Language:       cfg.Language,
		MaxQuestions:   cfg.MaxQuestions,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		TrustProxy:     cfg.TrustProxy,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		CORSOrigins:    cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Addr,
			"provider", cfg.LLM.Provider,
			"storage", cfg.Storage,
			"lang", cfg.Language,
			"default_format", cfg.DefaultFormat,
			"llm_timeout", cfg.LLMTimeout,
			"retention", cfg.Retention,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// langDir defaults to static/lang, where the bundled front end keeps its
// translation files.
func langDir(cfg config.Config) string {
	if cfg.LangDir != "" {
		return cfg.LangDir
	}
	return filepath.Join(cfg.StaticDir, "lang")
}
