package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/specialistvlad/infernum/internal/cache"
	"github.com/specialistvlad/infernum/internal/config"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/kernel"
	"github.com/specialistvlad/infernum/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	ctx      context.Context
	logger   *slog.Logger
	config   *Config
	registry *extension.Registry
	store    cache.Store
	redis    *redis.Client
	metrics  *metrics.Metrics

	mu    sync.Mutex
	sites map[string]*Site

	handler    http.Handler
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, registry and
// metrics. A cache store that cannot be set up is a fatal startup error and
// panics.
func NewApp(outW io.Writer, appConfig *Config, pkgs ...extension.Package) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(pkgs) == 0 {
		pkgs = coreExtensions
	}
	reg := extension.NewRegistry(pkgs...)
	logger.Debug("All compiled-in extensions registered.", "count", len(pkgs))

	a := &App{
		outW:     outW,
		ctx:      ctx,
		logger:   logger,
		config:   appConfig,
		registry: reg,
		metrics:  metrics.New(),
		sites:    make(map[string]*Site),
	}

	store, err := a.newStore()
	if err != nil {
		panic(fmt.Errorf("failed to set up %s cache: %w", appConfig.Cache, err))
	}
	a.store = store
	logger.Debug("Cache store ready.", "driver", appConfig.Cache)

	a.handler = a.routes()
	return a
}

func (a *App) newStore() (cache.Store, error) {
	switch a.config.Cache {
	case CacheMemory:
		return cache.NewMemoryStore(), nil
	case CacheRedis:
		opts, err := redis.ParseURL(a.config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(a.ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		a.redis = client
		return cache.NewRedisStore(client), nil
	default:
		return cache.NewFileStore(a.cachePath())
	}
}

func (a *App) cachePath() string {
	return filepath.Join(a.config.Root, "cache")
}

// Registry returns the compiled-in extension registry.
func (a *App) Registry() *extension.Registry { return a.registry }

// Metrics returns the process-wide collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Handler returns the HTTP handler serving every site of the installation.
func (a *App) Handler() http.Handler { return a.handler }

// System loads the system configuration through the cache.
func (a *App) System(ctx context.Context) (*config.System, error) {
	return cache.Remember(ctx, cache.Observe(a.store, a.metrics), "config", cache.DefaultLifetime, func(ctx context.Context) (*config.System, error) {
		return config.Load(ctx, a.config.Root)
	})
}

// Extensions scans the installation for extensions backed by compiled-in code.
func (a *App) Extensions(ctx context.Context) (*extension.Catalog, error) {
	return extension.Scan(ctxlog.WithLogger(ctx, a.logger), a.config.Root, a.registry)
}

// ClearCache empties the cache store.
func (a *App) ClearCache(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear %s cache: %w", a.config.Cache, err)
	}
	a.logger.Info("Cache cleared.", "driver", a.config.Cache)
	return nil
}

// newKernel builds a kernel sharing the app's store and collectors.
func (a *App) newKernel(ctx context.Context) (*kernel.Kernel, error) {
	return kernel.New(ctx, kernel.Options{
		Root:     a.config.Root,
		Registry: a.registry,
		Cache:    a.store,
		Metrics:  a.metrics,
	})
}

// Close releases every site kernel and the cache connection.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for name, s := range a.sites {
		if err := s.kernel.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close site %q: %w", name, err)
		}
	}
	a.sites = make(map[string]*Site)
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
