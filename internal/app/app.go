// Package app provides the main application struct for centralized dependency
// management and lifecycle control of the complaint service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"civiq/config"
	"civiq/internal/cache"
	"civiq/internal/complaints"
	"civiq/internal/idempotency"
	"civiq/internal/kv"
	"civiq/internal/lock"
	"civiq/internal/notify"
	"civiq/internal/protect"
	"civiq/internal/server"
	"civiq/internal/storage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config  *config.Config
	kv      kv.Store
	storage *storage.DB
	server  *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{config: cfg}

	// Shared KV store backing the cache, lock, and ledger. Without a Redis
	// URL the in-process store is used; coordination then only holds within
	// a single instance.
	if cfg.Redis.URL != "" {
		store, err := kv.NewRedis(kv.RedisConfig{URL: cfg.Redis.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.kv = store
	} else {
		slog.Warn("REDIS_URL not set, using in-process KV store",
			"limitation", "locks and idempotency hold within this instance only")
		app.kv = kv.NewMemory()
	}

	policies, err := protect.LoadPolicies(cfg.Cache.PolicyFile)
	if err != nil {
		closeErr := app.kv.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to load route policies: %w (also: kv close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to load route policies: %w", err)
	}
	applyDefaultTTL(policies, cfg.Cache.TTL)

	coord := protect.NewCoordinator(
		cache.NewTagged(app.kv),
		lock.NewManager(app.kv, cfg.Lock.TTL),
		idempotency.NewLedger(app.kv, idempotency.Config{
			TTL:          cfg.Idempotency.TTL,
			MaxBodyBytes: cfg.Idempotency.MaxBodyBytes,
		}),
	)

	store, err := buildComplaintStore(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	svc := complaints.NewService(store, notify.NewLogNotifier())

	app.logStartupInfo()

	app.server = server.New(svc, coord, policies, &server.Config{
		AuthSecret:     []byte(cfg.Auth.Secret),
		MetricsEnabled: cfg.Server.MetricsEnabled,
		BodySizeLimit:  cfg.Server.BodySizeLimit,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	return app, nil
}

// buildComplaintStore opens the durable system of record per configuration.
func buildComplaintStore(ctx context.Context, cfg *config.Config, app *App) (complaints.Store, error) {
	if cfg.Storage.Type == "memory" {
		slog.Warn("using in-memory complaint store, data will not survive restarts")
		return complaints.NewMemoryStore(), nil
	}

	db, err := storage.Open(ctx, storage.Config{
		Kind:        storage.Kind(cfg.Storage.Type),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresURL: cfg.Storage.PostgresURL,
	})
	if err != nil {
		closeErr := app.kv.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w (also: kv close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.storage = db

	store, err := complaints.NewStore(db)
	if err != nil {
		closeErr := errors.Join(db.Close(), app.kv.Close())
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize complaint store: %w (also: close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize complaint store: %w", err)
	}
	return store, nil
}

// applyDefaultTTL fills in the configured cache TTL for policies that enable
// caching without specifying one.
func applyDefaultTTL(policies map[string]protect.Policy, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	for name, pol := range policies {
		if pol.Cache != nil && pol.Cache.TTL == 0 {
			pol.Cache.TTL = ttl
			policies[name] = pol
		}
	}
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Server returns the HTTP server, exposed for tests that drive requests
// through ServeHTTP.
func (a *App) Server() *server.Server {
	return a.server
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first so no new requests arrive, then the durable store,
// then the KV connection.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined
// error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			slog.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			slog.Error("kv close error", "error", err)
			errs = append(errs, fmt.Errorf("kv close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Auth.Secret == "" {
		slog.Warn("SECURITY WARNING: AUTH_SECRET not set - all requests are anonymous",
			"recommendation", "set AUTH_SECRET to enable bearer token authentication")
	} else {
		slog.Info("authentication enabled", "mode", "bearer_jwt")
	}

	if cfg.Server.MetricsEnabled {
		slog.Info("prometheus metrics enabled", "endpoint", "/metrics")
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	slog.Info("coordination configured",
		"cache_ttl", cfg.Cache.TTL,
		"lock_ttl", cfg.Lock.TTL,
		"idempotency_ttl", cfg.Idempotency.TTL,
	)
}
