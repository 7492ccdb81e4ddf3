// Package metrics holds the prometheus collectors of one application
// instance. Collectors are registered on a private registry, so several
// instances (one per site, or per test) can coexist in a process.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the kernel, the cache and sessions.
type Metrics struct {
	registry *prometheus.Registry

	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	PluginsLoaded    prometheus.Counter
	ModulesLoaded    *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	SessionsStarted  *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a fresh
// registry, together with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infernum_dispatches_total",
			Help: "Dispatched requests by site, module and response status",
		}, []string{"site", "module", "status"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "infernum_dispatch_duration_seconds",
			Help:    "Duration of request dispatch including plugin hooks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"site", "module"}),
		PluginsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "infernum_plugins_loaded_total",
			Help: "Plugins constructed and booted",
		}),
		ModulesLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infernum_modules_loaded_total",
			Help: "Module instances constructed, by module",
		}, []string{"module"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infernum_cache_hits_total",
			Help: "Compute-or-fetch lookups served from the cache store",
		}, []string{"entry"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infernum_cache_misses_total",
			Help: "Compute-or-fetch lookups that had to invoke the producer",
		}, []string{"entry"}),
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "infernum_sessions_started_total",
			Help: "Sessions initialised, by outcome (created or resumed)",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDispatch records one finished dispatch.
// Call with time.Now() at the start of the dispatch.
func (m *Metrics) ObserveDispatch(site, module string, status int, start time.Time) {
	if module == "" {
		module = "none"
	}
	m.Dispatches.WithLabelValues(site, module, strconv.Itoa(status)).Inc()
	m.DispatchDuration.WithLabelValues(site, module).Observe(time.Since(start).Seconds())
}

// IncrementPluginLoaded records a plugin boot.
func (m *Metrics) IncrementPluginLoaded() {
	m.PluginsLoaded.Inc()
}

// IncrementModuleLoaded records a module construction.
func (m *Metrics) IncrementModuleLoaded(module string) {
	m.ModulesLoaded.WithLabelValues(module).Inc()
}

// IncrementSessionStarted records a session init; resumed tells a resumed
// session from a freshly created one.
func (m *Metrics) IncrementSessionStarted(resumed bool) {
	outcome := "created"
	if resumed {
		outcome = "resumed"
	}
	m.SessionsStarted.WithLabelValues(outcome).Inc()
}

// CacheHit implements cache.Recorder.
func (m *Metrics) CacheHit(name string) {
	m.CacheHits.WithLabelValues(entryLabel(name)).Inc()
}

// CacheMiss implements cache.Recorder.
func (m *Metrics) CacheMiss(name string) {
	m.CacheMisses.WithLabelValues(entryLabel(name)).Inc()
}

// entryLabel keeps label cardinality bounded: "site.default" -> "site".
func entryLabel(name string) string {
	prefix, _, _ := strings.Cut(name, ".")
	return prefix
}
