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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/basket/internal/api"
	"github.com/starford/basket/internal/mcpserver"
	"github.com/starford/basket/internal/metrics"
	"github.com/starford/basket/internal/optimizer"
	"github.com/starford/basket/internal/parser"
	"github.com/starford/basket/internal/session"
	"github.com/starford/basket/internal/sse"
	"github.com/starford/basket/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the components shared by every entry point.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	level   *slog.LevelVar
	store   storage.Store
	metrics *metrics.Metrics
	broker  *sse.Broker
	mgr     *session.Manager
}

func bootstrap(opts []Option) (*application, *runtime, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("store_path", cfg.Store.Path),
		slog.String("optimizer_url", cfg.Optimizer.URL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if cfg.Store.Driver == storage.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	store, err := storage.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	opt := app.optimizer
	if opt == nil {
		opt = optimizer.NewHTTPClient(optimizer.HTTPConfig{
			URL:           cfg.Optimizer.URL,
			Timeout:       cfg.Optimizer.Timeout,
			RatePerSecond: cfg.Optimizer.RatePerSecond,
			Burst:         cfg.Optimizer.Burst,
		}, optimizer.StaticToken(cfg.Optimizer.Token), logger)
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		level:   level,
		store:   store,
		metrics: metrics.New(),
		broker:  sse.NewBroker(2 * time.Second),
	}
	rt.mgr = session.NewManager(session.Deps{
		Store:        store,
		Optimizer:    opt,
		Metrics:      rt.metrics,
		Events:       rt.broker,
		Logger:       logger,
		PersistDelay: cfg.Drafts.PersistDebounce,
	})
	return app, rt, nil
}

// close flushes pending drafts before releasing storage.
func (rt *runtime) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := rt.mgr.Close(ctx); err != nil {
		rt.logger.Error("Flushing drafts failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	rt.broker.Close()
	if err := rt.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

func (rt *runtime) router() chi.Router {
	apiRouter := api.NewRouter(rt.mgr, rt.cfg.Auth.AuthEnabled(), rt.cfg.Auth.Token, rt.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if _, err := rt.store.List(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Handle("/metrics", rt.metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// Run starts the HTTP server with the given options and blocks until a signal
// arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, rt, err := bootstrap(opts)
	if err != nil {
		return err
	}
	logger := rt.logger

	httpServer := &http.Server{
		Addr:              rt.cfg.App.HTTP.Address(),
		Handler:           rt.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", rt.cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if app.configPath != "" {
		g.Go(func() error {
			if err := WatchLogLevel(gCtx, app.configPath, rt.level, logger); err != nil {
				logger.Warn("Config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", rt.cfg.App.HTTP.Address()))
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	err = g.Wait()
	if closeErr := rt.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, rt, err := bootstrap(opts)
	if err != nil {
		return err
	}
	srv := mcpserver.New(rt.mgr, app.version)
	rt.logger.Info("MCP server starting on stdio")
	serveErr := srv.ServeStdio()
	if err := rt.close(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Import creates a list from a YAML or Markdown document and returns its id.
func Import(ctx context.Context, data []byte, opts ...Option) (string, error) {
	_, rt, err := bootstrap(opts)
	if err != nil {
		return "", err
	}
	id, importErr := importList(ctx, rt.mgr, data)
	if err := rt.close(); err != nil && importErr == nil {
		importErr = err
	}
	if importErr != nil {
		return "", importErr
	}
	rt.logger.Info("List imported", slog.String("list_id", id))
	return id, nil
}

func importList(ctx context.Context, mgr *session.Manager, data []byte) (string, error) {
	doc, err := parser.Parse(data)
	if err != nil {
		return "", fmt.Errorf("parse list: %w", err)
	}
	items := make([]session.NewItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, session.NewItem{CanonicalID: it.CanonicalID, ProductName: it.ProductName, Quantity: it.Quantity})
	}
	s, err := mgr.Import(ctx, doc.Name, doc.MaxStores, items)
	if err != nil {
		return "", err
	}
	return s.ID(), nil
}
