// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/notetaker/internal/api"
	"github.com/starford/notetaker/internal/audio"
	"github.com/starford/notetaker/internal/inbox"
	"github.com/starford/notetaker/internal/index"
	"github.com/starford/notetaker/internal/mcpserver"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/noteservice"
	"github.com/starford/notetaker/internal/sse"
	"github.com/starford/notetaker/internal/storage"
	"github.com/starford/notetaker/internal/webcapture"
)

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logWriter(os.Stdout), cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("audio_enabled", cfg.Audio.Enabled),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.ListThrottle)
	defer broker.Close()

	svc, cleanup, err := openService(ctx, cfg, logger, broker, true)
	if err != nil {
		return err
	}
	defer cleanup()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	g, gCtx := errgroup.WithContext(runCtx)

	// Watch the inbox folder for documents to import.
	if cfg.Inbox.Enabled {
		w := inbox.New(cfg.Inbox.Path, svc,
			inbox.WithSettle(cfg.Inbox.Settle),
			inbox.WithLogger(logger),
			inbox.WithCallback(func(n *models.Note, source string) {
				logger.Info("inbox import",
					slog.String("id", n.ID),
					slog.String("title", n.Title),
					slog.String("source", source))
			}))
		g.Go(func() error {
			if err := w.Run(gCtx); err != nil {
				return fmt.Errorf("inbox watcher: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		// An in-flight recording has nowhere to go once the server is gone.
		if err := svc.CancelAudio(); err != nil {
			logger.Warn("cancel recording", slog.String("error", err.Error()))
		}
		stopRun()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr so they never
// interleave with protocol frames.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logWriter(os.Stderr), cfg.App.LogLevel)
	slog.SetDefault(logger)

	// The HTTP server may share this storage and be mid-capture, so the MCP
	// process never sweeps or reconciles it.
	svc, cleanup, err := openService(ctx, cfg, logger, nil, false)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("MCP server starting on stdio",
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("sqlite_path", cfg.SQLite.Path))

	if err := mcpserver.New(svc).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// openService builds the storage, index and capture components. With
// recoverStorage set it also removes stale pending payloads and orphaned
// attachments. notifier may be nil.
func openService(ctx context.Context, cfg *Config, logger *slog.Logger, notifier noteservice.Notifier, recoverStorage bool) (*noteservice.Service, func(), error) {
	// Ensure storage directory exists.
	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create storage dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	if recoverStorage {
		if n, err := store.SweepPending(cfg.Storage.PendingMaxAge); err != nil {
			logger.Warn("pending sweep failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("removed stale pending payloads", slog.Int("count", n))
		}
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	recorder := audio.NewEngine(
		&audio.CommandMicrophone{Enabled: cfg.Audio.Enabled, Command: cfg.Audio.Command},
		store,
		audio.WithFormat(cfg.Audio.Format()),
		audio.WithTick(cfg.Audio.Tick),
		audio.WithLogger(logger),
	)

	svcOpts := []noteservice.Option{
		noteservice.WithRecorder(recorder),
		noteservice.WithFetcher(webcapture.NewFetcher(cfg.Web.Fetcher(), logger)),
		noteservice.WithLogger(logger),
	}
	if notifier != nil {
		svcOpts = append(svcOpts, noteservice.WithNotifier(notifier))
	}
	svc := noteservice.NewService(store, db, svcOpts...)

	if recoverStorage {
		if n, err := svc.Reconcile(ctx); err != nil {
			logger.Warn("attachment reconcile failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("removed orphaned attachments", slog.Int("count", n))
		}
	}

	cleanup := func() {
		svc.Player().Unload()
		if err := db.Close(); err != nil {
			logger.Error("close index", slog.String("error", err.Error()))
		}
	}
	return svc, cleanup, nil
}
