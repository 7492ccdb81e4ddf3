package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveDispatch("default", "blog", 200, time.Now())
	m.ObserveDispatch("default", "blog", 200, time.Now())
	m.ObserveDispatch("default", "", 404, time.Now())
	m.IncrementPluginLoaded()
	m.IncrementModuleLoaded("blog")
	m.CacheHit("site.default")
	m.CacheMiss("config")
	m.IncrementSessionStarted(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("default", "blog", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("default", "none", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModulesLoaded.WithLabelValues("blog")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("site")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("config")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted.WithLabelValues("resumed")))
}

func TestMetrics_InstancesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.IncrementPluginLoaded()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PluginsLoaded))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncrementModuleLoaded("home")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `infernum_modules_loaded_total{module="home"} 1`)
}
