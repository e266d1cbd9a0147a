// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tasknotes/internal/api"
	"github.com/starford/tasknotes/internal/mcpserver"
	"github.com/starford/tasknotes/internal/mirror"
	"github.com/starford/tasknotes/internal/noteservice"
	"github.com/starford/tasknotes/internal/notestore"
	"github.com/starford/tasknotes/internal/settings"
	"github.com/starford/tasknotes/internal/sse"
	"github.com/starford/tasknotes/internal/storage"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg        *Config
	configPath string
	logger     *slog.Logger
	db         *notestore.DB
	policy     *settings.Provider
}

func setup(opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("storage_mode", cfg.Notes.Storage),
		slog.Bool("preserve_content", cfg.Notes.PreserveContent),
		slog.String("mirror_dir", cfg.Notes.MirrorDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := notestore.Open(cfg.SQLite.Path, notestore.WithMode(cfg.Notes.Storage))
	if err != nil {
		return nil, fmt.Errorf("init note store: %w", err)
	}

	return &runtime{
		cfg:        cfg,
		configPath: app.configPath,
		logger:     logger,
		db:         db,
		policy:     settings.New(cfg.Notes.PreserveContent),
	}, nil
}

// watchSettings reloads the notes settings from the config file until ctx is
// done. Without a config path it only waits for ctx.
func (rt *runtime) watchSettings(ctx context.Context) error {
	if rt.configPath == "" {
		<-ctx.Done()
		return nil
	}
	if err := rt.policy.Watch(ctx, rt.configPath, rt.logger); err != nil {
		rt.logger.Warn("settings watcher unavailable", slog.String("error", err.Error()))
	}
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svcOpts := []noteservice.Option{noteservice.WithNotifier(broker)}
	var mir *mirror.Mirror
	if dir := cfg.Notes.MirrorDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mirror dir: %w", err)
		}
		mir, err = mirror.New(dir, logger)
		if err != nil {
			return fmt.Errorf("init mirror: %w", err)
		}
		svcOpts = append(svcOpts, noteservice.WithNotifier(mir))
	}

	svc := noteservice.NewService(rt.db, rt.policy, svcOpts...)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
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

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.watchSettings(gCtx)
	})

	if mir != nil {
		g.Go(func() error {
			if err := mir.Run(gCtx, svc); err != nil {
				logger.Warn("mirror unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// redirected with WithLogOutput.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	defer rt.db.Close()

	svc := noteservice.NewService(rt.db, rt.policy)
	srv := mcpserver.New(svc)

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)
	defer stopWatch()

	g.Go(func() error {
		return rt.watchSettings(watchCtx)
	})
	g.Go(func() error {
		defer stopWatch()
		rt.logger.Info("Starting MCP server on stdio")
		return srv.ServeStdio()
	})
	return g.Wait()
}

// Export writes every task's notes into dir as <taskID>.note files.
func Export(ctx context.Context, dir string, opts ...Option) (int, error) {
	rt, err := setup(opts)
	if err != nil {
		return 0, err
	}
	defer rt.db.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}
	archive, err := storage.NewFS(dir)
	if err != nil {
		return 0, fmt.Errorf("init archive: %w", err)
	}
	n, err := noteservice.NewService(rt.db, rt.policy).Export(ctx, archive)
	if err != nil {
		return n, err
	}
	rt.logger.Info("export finished", slog.String("dir", dir), slog.Int("notes", n))
	return n, nil
}

// Import loads every <taskID>.note file in dir. Existing notes are kept
// unless overwrite is set.
func Import(ctx context.Context, dir string, overwrite bool, opts ...Option) (noteservice.ImportResult, error) {
	rt, err := setup(opts)
	if err != nil {
		return noteservice.ImportResult{}, err
	}
	defer rt.db.Close()

	archive, err := storage.NewFS(dir)
	if err != nil {
		return noteservice.ImportResult{}, fmt.Errorf("init archive: %w", err)
	}
	res, err := noteservice.NewService(rt.db, rt.policy).Import(ctx, archive, overwrite)
	if err != nil {
		return res, err
	}
	rt.logger.Info("import finished",
		slog.String("dir", dir),
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped))
	return res, nil
}
