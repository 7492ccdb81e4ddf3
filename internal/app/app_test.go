package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/infernum/internal/extension"
)

func baseInstallation() map[string]string {
	return map[string]string{
		"config.hcl": `
enable_multisite = true
default_site     = "default"
sites = {
  "docs.example.com" = "docs"
}
settings = {
  "poweredby.value" = "Infernum Test"
}
`,
		"modules/home/extension.hcl":      `extension { title = "Home" }`,
		"modules/blog/extension.hcl":      `extension { title = "Blog" }`,
		"modules/blog/posts/hello.yaml":   "title: Hello\npublished: 2024-01-02T00:00:00Z\nbody: First post.\n",
		"plugins/analytics/extension.hcl": `extension {}`,
		"plugins/poweredby/extension.hcl": `extension {}`,
		"sites/default/site.hcl": `
title   = "Example"
plugins = ["poweredby", "analytics"]

settings = {
  "site.frontpage"   = "home:index"
  "header.X-Frame-Options" = "DENY"
}

route "home" {}
route "blog" {
  alias = "news"
  extra = { layout = "wide" }
}
`,
		"sites/docs/site.hcl": `
title = "Docs"
route "blog" {}
`,
	}
}

func newTestServer(t *testing.T, files map[string]string) (*App, *httptest.Server, *SafeBuffer) {
	t.Helper()
	root := WriteInstallation(t, files)
	cfg, err := NewConfig(Config{Root: root, Cache: CacheMemory})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv, logs
}

func get(t *testing.T, client *http.Client, url, host string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if host != "" {
		req.Host = host
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		in      Config
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{name: "missing root", in: Config{}, wantErr: "Root is a required"},
		{name: "unknown cache", in: Config{Root: "x", Cache: "disk"}, wantErr: `unknown cache driver "disk"`},
		{name: "redis without url", in: Config{Root: "x", Cache: CacheRedis}, wantErr: "redis URL is required"},
		{
			name: "defaults",
			in:   Config{Root: "x"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ":8080", c.Addr)
				assert.Equal(t, CacheFile, c.Cache)
				assert.Equal(t, 5*time.Second, c.ShutdownTimeout)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig(tc.in)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, srv, _ := newTestServer(t, baseInstallation())

	resp, body := get(t, srv.Client(), srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", body)

	_, _ = get(t, srv.Client(), srv.URL+"/", "")
	resp, body = get(t, srv.Client(), srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "infernum_dispatches_total")
}

func TestServe_Pages(t *testing.T) {
	_, srv, _ := newTestServer(t, baseInstallation())

	testCases := []struct {
		name       string
		path       string
		host       string
		wantStatus int
		wantBody   string
	}{
		{name: "front page", path: "/", wantStatus: 200, wantBody: "<h1>Example</h1>"},
		{name: "aliased blog index", path: "/news", wantStatus: 200, wantBody: `class="wide"`},
		{name: "blog post", path: "/news/show/hello", wantStatus: 200, wantBody: "First post."},
		{name: "missing post", path: "/news/show/nope", wantStatus: 404},
		{name: "unrouted module", path: "/blog", wantStatus: 404, wantBody: "blog"},
		{name: "page query parameter", path: "/?p=news/show/hello", wantStatus: 200, wantBody: "First post."},
		{name: "second site by domain", path: "/blog", host: "docs.example.com", wantStatus: 200, wantBody: "Hello"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := get(t, srv.Client(), srv.URL+tc.path, tc.host)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			if tc.wantBody != "" {
				assert.Contains(t, body, tc.wantBody)
			}
		})
	}
}

func TestServe_ResponseHeaders(t *testing.T) {
	_, srv, _ := newTestServer(t, baseInstallation())

	resp, _ := get(t, srv.Client(), srv.URL+"/", "")
	assert.Equal(t, "Infernum Test", resp.Header.Get("X-Powered-By"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Values("Set-Cookie"), "no database, no session")

	// The docs site loads no plugin, so nothing sets the powered-by service.
	resp, _ = get(t, srv.Client(), srv.URL+"/blog", "docs.example.com")
	assert.Empty(t, resp.Header.Get("X-Powered-By"))
}

func TestServe_HeadRequest(t *testing.T) {
	_, srv, _ := newTestServer(t, baseInstallation())

	req, err := http.NewRequest(http.MethodHead, srv.URL+"/", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestServe_Sessions(t *testing.T) {
	files := baseInstallation()
	root := WriteInstallation(t, nil)
	files["config.hcl"] = fmt.Sprintf(`
default_site = "default"
database {
  driver = "sqlite"
  dsn    = %q
  prefix = "inf_"
}
settings = {
  "cookie.prefix" = "ex_"
}
`, filepath.Join(root, "site.db"))
	a, srv, _ := newTestServer(t, files)

	resp, _ := get(t, srv.Client(), srv.URL+"/", "")
	require.Len(t, resp.Cookies(), 1)
	first := resp.Cookies()[0]
	assert.Equal(t, "ex_session", first.Name)
	assert.True(t, first.HttpOnly)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/news", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: first.Name, Value: first.Value})
	resp2, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Len(t, resp2.Cookies(), 1)
	assert.Equal(t, first.Value, resp2.Cookies()[0].Value, "session is resumed")

	// A made-up id is never adopted.
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: first.Name, Value: "not-a-session"})
	resp3, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp3.Body.Close()
	require.Len(t, resp3.Cookies(), 1)
	assert.NotEqual(t, "not-a-session", resp3.Cookies()[0].Value)

	site, err := a.site(a.ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.NotNil(t, site.sessions)
}

func TestServe_BootFailureIs500(t *testing.T) {
	files := baseInstallation()
	files["sites/default/site.hcl"] = `
plugins = ["missing"]
route "home" {}
`
	_, srv, logs := newTestServer(t, files)

	resp, _ := get(t, srv.Client(), srv.URL+"/", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, logs.String(), "Site configuration error.")
	assert.Contains(t, logs.String(), `depends on plugin \"missing\"`)
}

func TestServe_SiteIsBootedOnce(t *testing.T) {
	a, srv, _ := newTestServer(t, baseInstallation())

	for i := 0; i < 3; i++ {
		_, _ = get(t, srv.Client(), srv.URL+"/news", "")
	}
	site, err := a.site(a.ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	loaded := site.Kernel().LoadedPlugins()
	names := make([]string, 0, len(loaded))
	for _, m := range loaded {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"poweredby", "analytics"}, names)
}

type panicking struct{}

func (panicking) Register(r *extension.Registry) {
	r.RegisterModule("home", func(*extension.Meta, map[string]string) (extension.Module, error) {
		return panicModule{}, nil
	})
}

type panicModule struct{}

func (panicModule) Run(context.Context, extension.Application, *http.Request, string, []string) (*extension.Response, error) {
	panic("boom")
}

func TestServe_RecoversPanics(t *testing.T) {
	files := map[string]string{
		"config.hcl":                 ``,
		"modules/home/extension.hcl": `extension {}`,
		"sites/default/site.hcl":     `route "home" {}`,
	}
	root := WriteInstallation(t, files)
	cfg, err := NewConfig(Config{Root: root, Cache: CacheMemory})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg, panicking{})

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/home", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "Handler panicked.")
}

func TestExtensionsAndClearCache(t *testing.T) {
	a, srv, _ := newTestServer(t, baseInstallation())
	ctx := context.Background()

	cat, err := a.Extensions(ctx)
	require.NoError(t, err)
	var modules []string
	for _, m := range cat.List(extension.KindModule) {
		modules = append(modules, m.Name)
	}
	assert.Equal(t, []string{"blog", "home"}, modules)

	_, _ = get(t, srv.Client(), srv.URL+"/", "")
	ok, err := a.store.Contains(ctx, "config")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.ClearCache(ctx))
	ok, err = a.store.Contains(ctx, "config")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	root := WriteInstallation(t, baseInstallation())
	cfg, err := NewConfig(Config{Root: root, Addr: "127.0.0.1:0", Cache: CacheMemory, ShutdownTimeout: time.Second})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Infernum listening")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Contains(t, logs.String(), "HTTP server shut down gracefully.")
}

func TestNewApp_FileCache(t *testing.T) {
	root := WriteInstallation(t, baseInstallation())
	cfg, err := NewConfig(Config{Root: root})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.DirExists(t, filepath.Join(root, "cache"))
}

func TestWriteExtensions(t *testing.T) {
	files := baseInstallation()
	files["modules/blog/extension.hcl"] = `
extension {
  title            = "Blog"
  version          = "1.2.0"
  requires_plugins = ["analytics"]
}
`
	root := WriteInstallation(t, files)
	cfg, err := NewConfig(Config{Root: root, Cache: CacheMemory})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)

	var out strings.Builder
	require.NoError(t, a.WriteExtensions(context.Background(), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"KIND", "NAME", "VERSION", "REQUIRES", "TITLE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"module", "blog", "1.2.0", "analytics", "Blog"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"module", "home", "-", "-", "Home"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"plugin", "analytics", "-", "-", "analytics"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"plugin", "poweredby", "-", "-", "poweredby"}, strings.Fields(lines[4]))
}

func TestServe_ExampleInstallation(t *testing.T) {
	cfg, err := NewConfig(Config{Root: filepath.Join("..", "..", "examples", "installation"), Cache: CacheMemory})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, body := get(t, srv.Client(), srv.URL+"/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Served by the example installation.")
	assert.Equal(t, "Infernum", resp.Header.Get("X-Powered-By"))

	resp, body = get(t, srv.Client(), srv.URL+"/news/show/multiple-sites", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Serving more than one site")

	resp, body = get(t, srv.Client(), srv.URL+"/", "docs.localhost")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello, world")

	resp, body = get(t, srv.Client(), srv.URL+"/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Nothing here")
}
