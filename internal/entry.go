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
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/plansync/internal/api"
	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/localstorage"
	"github.com/starford/plansync/internal/mcpserver"
	"github.com/starford/plansync/internal/metrics"
	"github.com/starford/plansync/internal/ratelimit"
	"github.com/starford/plansync/internal/reconcile"
	"github.com/starford/plansync/internal/remote"
	"github.com/starford/plansync/internal/scheduler"
	"github.com/starford/plansync/internal/sse"
	"github.com/starford/plansync/internal/storage"
	"github.com/starford/plansync/internal/watch"
)

// runtime holds the components shared by the HTTP and MCP entry points.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	browser *localstorage.DB
	local   *storage.FS
	metrics *metrics.Metrics
	broker  *sse.Broker
	engine  *reconcile.Engine
}

func (rt *runtime) Close() {
	rt.broker.Close()
	if err := rt.browser.Close(); err != nil {
		rt.logger.Warn("app: close browser storage", slog.String("error", err.Error()))
	}
}

func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	if cfg.App.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.App.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	if out == nil {
		out = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// setup builds the engine and its collaborators and loads the document.
func setup(ctx context.Context, app *application) (*runtime, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.Storage.SQLitePath),
		slog.Bool("remote_enabled", cfg.Remote.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &runtime{cfg: cfg, logger: logger, metrics: metrics.New()}

	browser, err := localstorage.Open(cfg.Storage.SQLitePath, cfg.Storage.QuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("init browser storage: %w", err)
	}
	rt.browser = browser
	rt.broker = sse.NewBroker(2 * time.Second)

	sc := reconcile.SyncContext{
		Ledger:  ledger.New(nil),
		Browser: browser,
		Limiter: ratelimit.New(ratelimit.Config{
			Ceiling:     cfg.Sync.HourlyCeiling,
			MinInterval: cfg.Sync.MinInterval,
			MaxInterval: cfg.Sync.MaxInterval,
		}),
		Logger:       logger,
		Notifier:     rt.broker,
		Metrics:      rt.metrics,
		PushDebounce: cfg.Sync.PushDebounce,
		RemotePath:   cfg.Remote.Path,
	}

	if cfg.Workspace.Path != "" {
		if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
			rt.Close()
			return nil, fmt.Errorf("create workspace dir: %w", err)
		}
		local, err := storage.NewFS(cfg.Workspace.Path, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.local = local
		sc.Local = local
	}

	if cfg.Remote.Enabled {
		sc.Remote = remote.New(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Owner:   cfg.Remote.Owner,
			Repo:    cfg.Remote.Repo,
			Token:   cfg.Remote.Token,
		})
	}

	eng, err := reconcile.New(sc)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	rt.engine = eng

	if err := eng.Restore(); err != nil {
		logger.Warn("app: restore saved state failed", slog.String("error", err.Error()))
	}
	res, err := eng.PullMerge(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("initial load: %w", err)
	}
	logger.Info("app: document loaded", slog.String("source", string(res.Source)))

	if rt.local != nil {
		if _, err := eng.Discover(ctx, reconcile.ModeDeep); err != nil {
			logger.Warn("app: initial discovery failed", slog.String("error", err.Error()))
		}
	}
	return rt, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger, eng := rt.cfg, rt.logger, rt.engine

	sched, err := scheduler.New(eng, scheduler.Config{
		Light:      cfg.Sync.LightSchedule,
		Deep:       cfg.Sync.DeepSchedule,
		RemotePull: cfg.Sync.RemotePullSchedule,
		Local:      rt.local != nil,
	}, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	apiRouter := api.NewRouter(eng, rt.broker, cfg.Sync.ManualRPS, logger)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if st := eng.Status(); st.ReconnectRequired {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"reconnect required"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", rt.metrics.Handler())

	// Mount API routes under /api. The router serves /api/events itself.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(gCtx)
	})

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	if rt.local != nil {
		g.Go(func() error {
			return watch.Watch(gCtx, eng, cfg.Workspace.Path, watch.DefaultDebounce, logger,
				func(rep reconcile.DiscoveryReport, err error) {
					if err != nil || !rep.Changed() {
						return
					}
					logger.Debug("app: watcher pass applied changes",
						slog.Int("adopted", rep.Adopted), slog.Int("missing", rep.Missing))
				})
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

		// Flush the last edits before exiting.
		if _, err := eng.Save(shutdownCtx); err != nil {
			logger.Error("final save failed", slog.String("error", err.Error()))
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

// errShutdown cancels the group once the signal goroutine finishes.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. The push loop keeps running so
// edits made through tools are saved.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.engine.Run(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		rt.logger.Info("mcp: serving on stdio")
		return mcpserver.New(rt.engine).ServeStdio()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if _, err := rt.engine.Save(context.Background()); err != nil {
		rt.logger.Error("mcp: final save failed", slog.String("error", err.Error()))
	}
	return nil
}
