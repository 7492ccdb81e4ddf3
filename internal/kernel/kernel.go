// Package kernel is the orchestration core. A Kernel owns the service
// container, knows which extensions are installed, boots one site and
// dispatches requests to the modules that site mounts.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/infernum/internal/cache"
	"github.com/specialistvlad/infernum/internal/config"
	"github.com/specialistvlad/infernum/internal/container"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/database"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/fsutil"
	"github.com/specialistvlad/infernum/internal/loader"
	"github.com/specialistvlad/infernum/internal/metrics"
	"github.com/specialistvlad/infernum/internal/router"
	"github.com/specialistvlad/infernum/internal/site"
	"github.com/specialistvlad/infernum/internal/view"
)

// Reserved service keys. They are assigned once while the kernel is built
// and can be neither replaced nor removed afterwards.
const (
	ServiceConfig = "config"
	ServiceLoader = "loader"
	ServiceLogger = "logger"
	ServiceCache  = "cache"
	ServiceRouter = "router"
	// ServiceDB is set when the system config names a database. It is not
	// reserved.
	ServiceDB = "db"
)

const tracerName = "github.com/specialistvlad/infernum/internal/kernel"

// Options configures New.
type Options struct {
	// Root is the installation directory.
	Root string
	// Registry holds the compiled-in extension factories.
	Registry *extension.Registry
	// Cache overrides the store; nil means a file store below Root/cache.
	Cache cache.Store
	// Metrics is optional; a private instance is created when nil.
	Metrics *metrics.Metrics
	// Tracer is optional; the global otel tracer is used when nil.
	Tracer trace.Tracer
	// ConfigLifetime is how long the parsed system config is cached; zero
	// means cache.DefaultLifetime.
	ConfigLifetime time.Duration
}

type loadedPlugin struct {
	meta     *extension.Meta
	instance extension.Plugin
}

// Kernel is safe for concurrent use once booted. Extension loading is
// serialized; dispatches run concurrently.
type Kernel struct {
	path     string
	services *container.Container
	catalog  *extension.Catalog
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	views    *view.Renderer

	mu            sync.Mutex
	booted        bool
	domain        string
	secure        bool
	site          *site.Site
	loadedModule  string
	loadedPlugins []*loadedPlugin
	pluginIndex   map[string]*loadedPlugin
	loading       []string

	stateMu  sync.RWMutex
	pagePath string
	last     DispatchInfo
}

// New builds a kernel for the installation at opts.Root: it sets up the
// service container, loads the system config through the cache, opens the
// database if one is configured and scans the installed extensions.
func New(ctx context.Context, opts Options) (*Kernel, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Kernel initialization started.", "root", opts.Root)

	if opts.Registry == nil {
		opts.Registry = extension.NewRegistry()
	}
	k := &Kernel{
		path:        opts.Root,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		pluginIndex: make(map[string]*loadedPlugin),
	}
	if k.metrics == nil {
		k.metrics = metrics.New()
	}
	if k.tracer == nil {
		k.tracer = otel.Tracer(tracerName)
	}

	k.services = container.New("kernel", map[string]container.Contract{
		ServiceConfig: container.TypeOf[*config.System](),
		ServiceLoader: container.TypeOf[*loader.Loader](),
		ServiceLogger: container.TypeOf[*slog.Logger](),
		ServiceCache:  container.TypeOf[cache.Store](),
		ServiceRouter: container.TypeOf[*router.Router](),
	})

	store := opts.Cache
	if store == nil {
		dir, err := k.CachePath("")
		if err != nil {
			return nil, err
		}
		if store, err = cache.NewFileStore(dir); err != nil {
			return nil, err
		}
	}
	store = cache.Observe(store, k.metrics)
	if err := k.services.Provide(ServiceCache, store); err != nil {
		return nil, err
	}

	lifetime := opts.ConfigLifetime
	if lifetime == 0 {
		lifetime = cache.DefaultLifetime
	}
	cfg, err := cache.Remember(ctx, store, "config", lifetime, func(ctx context.Context) (*config.System, error) {
		return config.Load(ctx, k.path)
	})
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("unable to load system configuration: %w", err)}
	}

	ld := loader.New()
	if dir := filepath.Join(k.path, "views"); fsutil.IsDir(dir) {
		ld.AddSource(view.GlobalNamespace, k.path)
	}
	k.views = view.NewRenderer(ld)

	for key, value := range map[string]any{
		ServiceConfig: cfg,
		ServiceLoader: ld,
		ServiceLogger: logger,
		ServiceRouter: router.New(),
	} {
		if err := k.services.Provide(key, value); err != nil {
			return nil, err
		}
	}

	if cfg.Database.Enabled() {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, &ConfigurationError{Err: err}
		}
		if err := k.services.Set(ServiceDB, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Debug("Database connected.", "driver", db.Dialect().Name)
	}

	if k.catalog, err = extension.Scan(ctx, k.path, opts.Registry); err != nil {
		return nil, err
	}

	logger.Debug("Kernel initialized.", "services", k.services.Keys())
	return k, nil
}

// Close releases the resources the kernel opened.
func (k *Kernel) Close() error {
	if db, err := container.Lookup[*database.DB](k.services, ServiceDB); err == nil {
		return db.Close()
	}
	return nil
}

// Services returns the service container.
func (k *Kernel) Services() *container.Container { return k.services }

// Store returns the cache store.
func (k *Kernel) Store() cache.Store {
	return container.MustLookup[cache.Store](k.services, ServiceCache)
}

// Router returns the router the booted site's modules are mounted on.
func (k *Kernel) Router() *router.Router {
	return container.MustLookup[*router.Router](k.services, ServiceRouter)
}

// Loader returns the namespace registry.
func (k *Kernel) Loader() *loader.Loader {
	return container.MustLookup[*loader.Loader](k.services, ServiceLoader)
}

// System returns the system configuration.
func (k *Kernel) System() *config.System {
	return container.MustLookup[*config.System](k.services, ServiceConfig)
}

// Catalog returns the installed extensions.
func (k *Kernel) Catalog() *extension.Catalog { return k.catalog }

// Metrics returns the kernel's collectors.
func (k *Kernel) Metrics() *metrics.Metrics { return k.metrics }

// Path returns the installation directory.
func (k *Kernel) Path() string { return k.path }

// IsReady reports whether Boot succeeded.
func (k *Kernel) IsReady() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.booted
}

// Domain returns the host name the kernel was booted for.
func (k *Kernel) Domain() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.domain
}

// IsSecure reports whether the boot request arrived over HTTPS.
func (k *Kernel) IsSecure() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.secure
}

// Site returns the booted site, or nil.
func (k *Kernel) Site() *site.Site {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.site
}

// PagePath returns the page path of the most recent dispatch.
func (k *Kernel) PagePath() string {
	k.stateMu.RLock()
	defer k.stateMu.RUnlock()
	return k.pagePath
}

// LoadedModule returns the name of the most recently loaded module.
func (k *Kernel) LoadedModule() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadedModule
}

// LoadedPlugins returns the loaded plugins in load order.
func (k *Kernel) LoadedPlugins() []*extension.Meta {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*extension.Meta, len(k.loadedPlugins))
	for i, p := range k.loadedPlugins {
		out[i] = p.meta
	}
	return out
}

func (k *Kernel) pluginsSnapshot() []*loadedPlugin {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.loadedPlugins)
}

// Config returns the system setting stored under key, or def.
func (k *Kernel) Config(key, def string) string {
	return k.System().Setting(key, def)
}

// CachePath returns Root/cache, or the sub directory below it, creating it
// when needed.
func (k *Kernel) CachePath(sub string) (string, error) {
	p := filepath.Join(k.path, "cache")
	if sub != "" {
		p = filepath.Join(p, sub)
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", p, err)
	}
	return p, nil
}

// Remember is cache.Remember on the kernel's store; a zero lifetime means
// cache.DefaultLifetime.
func Remember[T any](ctx context.Context, k *Kernel, name string, lifetime time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	if lifetime == 0 {
		lifetime = cache.DefaultLifetime
	}
	return cache.Remember(ctx, k.Store(), name, lifetime, produce)
}
