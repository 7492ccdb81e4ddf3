// Package router maps page paths onto the modules a site has mounted.
//
// Each mounted module owns the subtree below its alias: "articles/show/42"
// resolves to the module mounted on "articles", action "show" and the
// arguments ["42"]. Matching is done on a chi route tree.
package router

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// DefaultAction is used when a path names a module but no action.
const DefaultAction = "index"

var (
	// ErrInvalidAlias is returned for aliases that cannot be mounted.
	ErrInvalidAlias = errors.New("invalid route alias")
	// ErrAliasTaken is returned when two modules are mounted on the same alias.
	ErrAliasTaken = errors.New("route alias already mounted")
)

// Kind classifies a parse result.
type Kind int

const (
	// NotFound means the path names no mounted module.
	NotFound Kind = iota
	// Empty means nothing was requested; the front page should be served.
	Empty
	// Matched means a mounted module owns the path.
	Matched
)

func (k Kind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Empty:
		return "empty"
	default:
		return "not_found"
	}
}

// Result is the outcome of Parse.
type Result struct {
	Kind      Kind
	Module    string
	Action    string
	Arguments []string
	Extra     map[string]string
}

// Mount describes one mounted module.
type Mount struct {
	Module string
	Alias  string
	Extra  map[string]string
}

type binding struct {
	module string
	alias  string
	extra  map[string]string
}

// Router holds the mounted modules of one site.
type Router struct {
	mu       sync.RWMutex
	mux      *chi.Mux
	patterns map[string]*binding
	aliases  map[string]*binding
}

// New creates an empty router.
func New() *Router {
	return &Router{
		mux:      chi.NewMux(),
		patterns: make(map[string]*binding),
		aliases:  make(map[string]*binding),
	}
}

var nopHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// MountModule mounts module below alias. An empty alias mounts the module
// under its own name.
func (r *Router) MountModule(module, alias string, extra map[string]string) error {
	if alias == "" {
		alias = module
	}
	alias = strings.Trim(alias, "/")
	if module == "" || alias == "" || strings.ContainsAny(alias, "/{}*") {
		return fmt.Errorf("%w: %q for module %q", ErrInvalidAlias, alias, module)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.aliases[alias]; ok {
		return fmt.Errorf("%w: %q is used by module %q", ErrAliasTaken, alias, prev.module)
	}

	b := &binding{module: module, alias: alias, extra: maps.Clone(extra)}
	r.aliases[alias] = b
	for _, pattern := range []string{"/" + alias, "/" + alias + "/*"} {
		r.mux.Handle(pattern, nopHandler)
		r.patterns[pattern] = b
	}
	return nil
}

// Parse resolves a page path. Leading and trailing slashes are ignored.
func (r *Router) Parse(path string) Result {
	path = strings.Trim(path, "/")
	if path == "" {
		return Result{Kind: Empty}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rctx := chi.NewRouteContext()
	pattern := r.mux.Find(rctx, http.MethodGet, "/"+path)
	b, ok := r.patterns[pattern]
	if !ok {
		return Result{Kind: NotFound}
	}

	res := Result{
		Kind:   Matched,
		Module: b.module,
		Action: DefaultAction,
		Extra:  maps.Clone(b.extra),
	}
	var segments []string
	for _, s := range strings.Split(rctx.URLParam("*"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) > 0 {
		res.Action = segments[0]
	}
	if len(segments) > 1 {
		res.Arguments = segments[1:]
	}
	return res
}

// Mounts lists the mounted modules, sorted by alias.
func (r *Router) Mounts() []Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Mount, 0, len(r.aliases))
	for _, b := range r.aliases {
		out = append(out, Mount{Module: b.module, Alias: b.alias, Extra: maps.Clone(b.extra)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}
