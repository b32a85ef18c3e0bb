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

	"github.com/webdevcody/youtube-video-suggestions/internal/api"
	"github.com/webdevcody/youtube-video-suggestions/internal/events"
	"github.com/webdevcody/youtube-video-suggestions/internal/ideaservice"
	"github.com/webdevcody/youtube-video-suggestions/internal/mcpserver"
	"github.com/webdevcody/youtube-video-suggestions/internal/metrics"
	"github.com/webdevcody/youtube-video-suggestions/internal/moderation"
	"github.com/webdevcody/youtube-video-suggestions/internal/ratelimit"
	"github.com/webdevcody/youtube-video-suggestions/internal/sse"
	"github.com/webdevcody/youtube-video-suggestions/internal/store"
	"github.com/webdevcody/youtube-video-suggestions/internal/tagging"
)

// core holds the components shared by the HTTP server and the MCP server.
type core struct {
	logger *slog.Logger
	db     *store.DB
	bus    *events.Bus
	filter *moderation.Filter
	worker *tagging.Worker
	svc    *ideaservice.Service

	oracleLimiter *ratelimit.KeyedRateLimiter // nil when tagging is unpaced
}

// close drains tagging jobs, then releases the limiter and the database.
func (c *core) close() {
	c.worker.Wait()
	if c.oracleLimiter != nil {
		c.oracleLimiter.Stop()
	}
	_ = c.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	return newLogger(a.logOutput, a.config.App.LogLevel)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildCore opens the database and wires the idea service. The caller
// must call close.
func buildCore(cfg *Config, logger *slog.Logger) (*core, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	filter := moderation.NewFilter()
	if p := cfg.Moderation.WordlistPath; p != "" {
		if err := filter.LoadFile(p); err != nil {
			logger.Warn("moderation: word list not loaded, using built-in list",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}

	bus := events.NewBus(logger)

	// An untyped nil keeps Worker.Enabled false.
	var (
		oracle        tagging.Oracle
		oracleLimiter *ratelimit.KeyedRateLimiter
	)
	if cfg.Tagging.Enabled() {
		ocfg := tagging.OpenAIConfig{
			APIKey:  cfg.Tagging.APIKey,
			BaseURL: cfg.Tagging.BaseURL,
			Model:   cfg.Tagging.Model,
			Timeout: cfg.Tagging.Timeout,
		}
		if rps := cfg.Tagging.RequestsPerSecond; rps > 0 {
			oracleLimiter = ratelimit.New(rps, 1)
			ocfg.Limiter = oracleLimiter
		}
		o, err := tagging.NewOpenAIOracle(ocfg)
		if err != nil {
			if oracleLimiter != nil {
				oracleLimiter.Stop()
			}
			_ = db.Close()
			return nil, fmt.Errorf("init tagging oracle: %w", err)
		}
		oracle = o
	} else {
		logger.Info("tagging: no API key configured, automatic tagging disabled")
	}

	worker := tagging.NewWorker(db, oracle, bus, tagging.Config{
		QuotaCeiling:  cfg.Tagging.QuotaCeiling,
		Timeout:       cfg.Tagging.Timeout,
		MaxConcurrent: cfg.Tagging.MaxConcurrent,
	}, logger)

	svc := ideaservice.NewService(db, bus, worker, filter, ideaservice.Options{
		QuotaCeiling: cfg.Tagging.QuotaCeiling,
		Logger:       logger,
	})

	return &core{logger: logger, db: db, bus: bus, filter: filter, worker: worker, svc: svc, oracleLimiter: oracleLimiter}, nil
}

// newRootRouter mounts health, metrics and the API.
func newRootRouter(svc *ideaservice.Service, apiRouter http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Handle("/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)
	return r
}

func writeStatus(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": s})
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("tagging_enabled", cfg.Tagging.Enabled()),
		slog.Int("quota_ceiling", cfg.Tagging.QuotaCeiling),
		slog.String("log_level", cfg.App.LogLevel.String()))

	cfg.Auth.warnTrustedHeaders(logger)

	c, err := buildCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	broker := sse.NewBroker(c.bus, sse.Config{
		KeepAlive:    cfg.Stream.KeepAliveInterval,
		ClientBuffer: cfg.Stream.ClientBuffer,
	}, logger)

	var limiter *ratelimit.KeyedRateLimiter
	if cfg.RateLimit.CreatePerMinute > 0 {
		limiter = ratelimit.PerInterval(cfg.RateLimit.CreatePerMinute, time.Minute, cfg.RateLimit.Burst)
		defer limiter.Stop()
	}

	apiRouter := api.NewRouter(c.svc, api.RouterConfig{
		Auth:          cfg.Auth.Settings(),
		CreateLimiter: limiter,
		Stream:        broker,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRootRouter(c.svc, apiRouter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload the moderation word list.
	if p := cfg.Moderation.WordlistPath; p != "" && cfg.Moderation.Watch {
		g.Go(func() error {
			if err := moderation.Watch(gCtx, c.filter, p, logger, nil); err != nil {
				logger.Warn("moderation: watcher not started", slog.String("error", err.Error()))
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

		// Streams never finish on their own; end them before Shutdown waits.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	err = g.Wait()

	logger.Info("Waiting for tagging jobs to finish")
	c.worker.Wait()

	if err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once shutdown is done so the word-list
// watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the idea board to an MCP client over stdin/stdout.
// Logs go to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	c, err := buildCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	caller := ideaservice.Caller{
		UserID: cfg.MCP.UserID,
		Email:  cfg.MCP.Email,
		Admin:  cfg.MCP.Email != "" && cfg.Auth.IsAdmin(cfg.MCP.Email),
	}
	logger.Info("MCP server starting", slog.String("user_id", caller.UserID))

	srv := mcpserver.New(c.svc, caller)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
