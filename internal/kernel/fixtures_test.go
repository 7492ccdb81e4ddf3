package kernel

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/specialistvlad/infernum/internal/cache"
	"github.com/specialistvlad/infernum/internal/container"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/stretchr/testify/require"
)

// journal records which extension ran, in order.
type journal struct {
	mu      sync.Mutex
	entries []string
	boots   map[string]int
	built   map[string]int
}

func newJournal() *journal {
	return &journal{boots: map[string]int{}, built: map[string]int{}}
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) Boots(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.boots[name]
}

func (j *journal) Built(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.built[name]
}

func runningName(ctx context.Context) string {
	if m := extension.Running(ctx); m != nil {
		return m.Name
	}
	return "<none>"
}

type testPlugin struct {
	name string
	j    *journal
}

func (p *testPlugin) Boot(ctx context.Context) error {
	p.j.mu.Lock()
	p.j.boots[p.name]++
	p.j.mu.Unlock()
	return nil
}

func (p *testPlugin) Run(ctx context.Context, app extension.Application) error {
	p.j.add("plugin %s running=%s", p.name, runningName(ctx))
	return nil
}

type testModule struct {
	name  string
	extra map[string]string
	j     *journal
}

func (m *testModule) Run(ctx context.Context, app extension.Application, req *http.Request, action string, args []string) (*extension.Response, error) {
	m.j.add("module %s running=%s", m.name, runningName(ctx))
	body := fmt.Sprintf("%s:%s:%s", m.name, action, strings.Join(args, ","))
	if layout := m.extra["layout"]; layout != "" {
		body += ":" + layout
	}
	return extension.NewResponse([]byte(body), 0), nil
}

type testPackage struct{ j *journal }

func (p testPackage) Register(r *extension.Registry) {
	for _, name := range []string{"blog", "home", "needy"} {
		r.RegisterModule(name, func(meta *extension.Meta, extra map[string]string) (extension.Module, error) {
			p.j.mu.Lock()
			p.j.built[name]++
			p.j.mu.Unlock()
			return &testModule{name: name, extra: extra, j: p.j}, nil
		})
	}
	for _, name := range []string{"analytics", "poweredby", "stats", "wanting", "chained", "loop-a", "loop-b"} {
		r.RegisterPlugin(name, func(meta *extension.Meta) (extension.Plugin, error) {
			return &testPlugin{name: name, j: p.j}, nil
		})
	}
}

type installation struct {
	root  string
	files map[string]string
}

func defaultInstallation() *installation {
	return &installation{files: map[string]string{
		"config.hcl":                     ``,
		"modules/blog/extension.hcl":     `extension { requires_plugins = ["stats"] }`,
		"modules/home/extension.hcl":     `extension { provides = ["libraries"] }`,
		"modules/needy/extension.hcl":    `extension { requires_plugins = ["ghost"] }`,
		"plugins/analytics/extension.hcl": `extension {}`,
		"plugins/poweredby/extension.hcl": `extension {}`,
		"plugins/stats/extension.hcl":     `extension {}`,
		"plugins/wanting/extension.hcl":   `extension { requires_plugins = ["ghost"] }`,
		"plugins/chained/extension.hcl":   `extension { requires_plugins = ["wanting"] }`,
		"plugins/loop-a/extension.hcl":    `extension { requires_plugins = ["loop-b"] }`,
		"plugins/loop-b/extension.hcl":    `extension { requires_plugins = ["loop-a"] }`,
		"sites/default/site.hcl": `
title   = "Example"
plugins = ["analytics", "poweredby"]

settings = {
  "site.frontpage" = "home:index"
}

route "blog" {}
route "blog" {
  alias = "articles"
  extra = { layout = "wide" }
}
route "home" {}
`,
	}}
}

func (in *installation) with(path, content string) *installation {
	in.files[path] = content
	return in
}

func (in *installation) write(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range in.files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	in.root = root
	return root
}

func testContext() context.Context {
	return ctxlog.Discard(context.Background())
}

func newTestKernel(t *testing.T, in *installation, j *journal) *Kernel {
	t.Helper()
	k, err := New(testContext(), Options{
		Root:     in.write(t),
		Registry: extension.NewRegistry(testPackage{j: j}),
		Cache:    cache.NewMemoryStore(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

// testApp is a minimal application context backed by the booted site.
type testApp struct {
	k         *Kernel
	finalized int
}

func (a *testApp) Setting(key, def string) string {
	if s := a.k.Site(); s != nil {
		if v, ok := s.Settings[key]; ok {
			return v
		}
	}
	return a.k.Config(key, def)
}

func (a *testApp) Services() *container.Container { return a.k.Services() }

func (a *testApp) Finalize(resp *extension.Response) {
	a.finalized++
	resp.Header.Set("X-Finalized", "yes")
}
