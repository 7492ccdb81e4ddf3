// Package analytics counts the page views of a site.
package analytics

import (
	"context"
	"sync/atomic"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/session"
)

// Name is the extension name the installation manifest must use.
const Name = "analytics"

const (
	// ServiceHits holds the site's *Plugin; read the live count with Hits.
	ServiceHits = "analytics.hits"
	// SessionViews is the session key counting the visitor's page views.
	SessionViews = "analytics.views"
)

// Package registers the analytics plugin.
type Package struct{}

// Register implements extension.Package.
func (p *Package) Register(r *extension.Registry) {
	r.RegisterPlugin(Name, New)
}

// Plugin counts dispatches for the lifetime of its kernel.
type Plugin struct {
	hits atomic.Int64
}

// New is the plugin factory.
func New(_ *extension.Meta) (extension.Plugin, error) {
	return &Plugin{}, nil
}

// Boot implements extension.Plugin.
func (p *Plugin) Boot(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("Analytics counter started.")
	return nil
}

// Run implements extension.Plugin. It counts the dispatch, publishes the
// plugin under ServiceHits on first use and, when the visitor has a
// session, bumps the per-visitor view count.
func (p *Plugin) Run(ctx context.Context, app extension.Application) error {
	p.hits.Add(1)
	// The same pointer on every run, so concurrent dispatches never
	// publish a stale count.
	if services := app.Services(); !services.Has(ServiceHits) {
		if err := services.Set(ServiceHits, p); err != nil {
			return err
		}
	}

	sess, ok := session.FromContext(ctx)
	if !ok || !sess.Active() {
		return nil
	}
	views := int64(0)
	if v, ok := sess.Get(SessionViews); ok {
		views = toInt64(v)
	}
	return sess.Set(ctx, SessionViews, views+1)
}

// Hits returns the number of dispatches counted so far.
func (p *Plugin) Hits() int64 { return p.hits.Load() }

// toInt64 accepts the integer widths msgpack may decode a count into.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}
