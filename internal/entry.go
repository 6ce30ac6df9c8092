// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/kernpunkt/llm-mem/internal/api"
	"github.com/kernpunkt/llm-mem/internal/indexsync"
	"github.com/kernpunkt/llm-mem/internal/mcpserver"
	"github.com/kernpunkt/llm-mem/internal/memservice"
	"github.com/kernpunkt/llm-mem/internal/memstore"
	"github.com/kernpunkt/llm-mem/internal/sse"
	"github.com/kernpunkt/llm-mem/internal/storage"
)

// ErrAuditFailed is returned by RunAudit when the report lists integrity
// violations.
var ErrAuditFailed = errors.New("audit found integrity violations")

// errShutdown cancels the run group once the server has stopped so the
// watcher exits too.
var errShutdown = errors.New("shutdown")

// components is the wired object graph shared by every command.
type components struct {
	registry *indexsync.Registry
	handle   *indexsync.Handle
	svc      *memservice.Service
}

func (r *components) Close() error {
	return r.registry.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// wire builds the store, index handle and service. notify may be nil.
func (a *application) wire(logger *slog.Logger, notify indexsync.EventCallback) (*components, error) {
	cfg := a.config

	files, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	store := memstore.New(files, logger)

	registry := indexsync.NewRegistry(indexsync.OpenSQLite, logger)
	handle, err := registry.Acquire(store, cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svcOpts := []memservice.Option{memservice.WithTemplates(cfg.TemplateSet())}
	if notify != nil {
		svcOpts = append(svcOpts, memservice.WithNotifier(notify))
	}
	svc, err := memservice.New(store, handle, cfg.Audit.Options(), logger, svcOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init service: %w", err), registry.Close())
	}

	return &components{registry: registry, handle: handle, svc: svc}, nil
}

// Run starts the HTTP API and the file watcher and blocks until ctx is
// cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2*time.Second, 30*time.Second)
	defer broker.Close()

	rt, err := app.wire(logger, broker.PublishMemoryEvent)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Bring the index up to date before serving.
	if n, err := rt.handle.Size(ctx); err != nil {
		logger.Warn("index: initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("index: ready", slog.Int("memories", n))
	}

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.handle.Size(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := indexsync.Watch(gCtx, rt.handle, logger, broker.PublishMemoryEvent); err != nil {
			logger.Warn("watcher: stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP serves the MCP tools over stdin/stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	rt, err := app.wire(logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("mcp: serving on stdio", slog.String("store_path", app.config.Store.Path))
	return mcpserver.New(rt.svc, app.version).Listen(ctx, os.Stdin, os.Stdout)
}

// RunAudit writes the audit report as JSON to w. It returns ErrAuditFailed
// when the report is not healthy.
func RunAudit(ctx context.Context, w io.Writer, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.wire(app.newLogger(), nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.svc.Audit(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if !report.Healthy() {
		return ErrAuditFailed
	}
	return nil
}

// RunReindex rebuilds the search index and returns the number of indexed
// memories.
func RunReindex(ctx context.Context, opts ...Option) (int, error) {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	logger := app.newLogger()
	rt, err := app.wire(logger, nil)
	if err != nil {
		return 0, err
	}
	defer rt.Close()

	n, err := rt.svc.Reindex(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("index: rebuilt", slog.Int("memories", n))
	return n, nil
}
