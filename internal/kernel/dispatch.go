package kernel

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/router"
	"github.com/specialistvlad/infernum/internal/view"
)

// FrontPageSetting names the "module:action" served for an empty page path.
const FrontPageSetting = "site.frontpage"

// DispatchInfo describes the most recent dispatch.
type DispatchInfo struct {
	PagePath  string
	Route     router.Kind
	Module    string
	Action    string
	Arguments []string
	// Running is the extension that produced the response; empty for the
	// not-found page.
	Running  string
	Status   int
	Duration time.Duration
}

// LastDispatch returns a snapshot of the most recent dispatch.
func (k *Kernel) LastDispatch() DispatchInfo {
	k.stateMu.RLock()
	defer k.stateMu.RUnlock()
	return k.last
}

// RequestPagePath extracts the requested page: the "p" query parameter
// when present, the URL path without its leading slash otherwise.
func RequestPagePath(req *http.Request) string {
	q := req.URL.Query()
	if q.Has("p") {
		return q.Get("p")
	}
	return strings.TrimPrefix(req.URL.Path, "/")
}

// FrontPage parses a "module:action" binding.
func FrontPage(binding string) (module, action string, ok bool) {
	module, action, ok = strings.Cut(strings.TrimSpace(binding), ":")
	if !ok || module == "" || action == "" {
		return "", "", false
	}
	return module, action, true
}

// Dispatch routes req to a module and returns the prepared and finalized
// response. Paths no module serves yield the not-found page; loading and
// hook errors are returned.
func (k *Kernel) Dispatch(ctx context.Context, req *http.Request, app extension.Application) (*extension.Response, error) {
	if !k.IsReady() {
		return nil, ErrNotBooted
	}
	start := time.Now()
	logger := ctxlog.FromContext(ctx)

	info := DispatchInfo{PagePath: RequestPagePath(req)}
	k.stateMu.Lock()
	k.pagePath = info.PagePath
	k.stateMu.Unlock()

	ctx, span := k.tracer.Start(ctx, "kernel.Dispatch", trace.WithAttributes(
		attribute.String("infernum.page_path", info.PagePath),
	))
	defer span.End()

	res := k.Router().Parse(info.PagePath)
	info.Route = res.Kind
	found := false
	switch res.Kind {
	case router.Matched:
		info.Module, info.Action, info.Arguments = res.Module, res.Action, res.Arguments
		found = true
	case router.Empty:
		module, action, ok := FrontPage(app.Setting(FrontPageSetting, ""))
		switch {
		case !ok:
			logger.Warn("Front page binding is malformed; serving not-found page.", "binding", app.Setting(FrontPageSetting, ""))
		case !k.ModuleExists(module):
			logger.Warn("Front page module is not installed; serving not-found page.", "module", module)
		default:
			info.Module, info.Action = module, action
			found = true
		}
	}

	var (
		resp *extension.Response
		err  error
	)
	if found {
		resp, err = k.runModule(ctx, req, app, &info, res.Extra)
	} else {
		resp, err = k.notFound(ctx, app, info.PagePath)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp.Prepare(req)
	app.Finalize(resp)

	info.Status = resp.Status
	info.Duration = time.Since(start)
	k.stateMu.Lock()
	k.last = info
	k.stateMu.Unlock()

	siteName := ""
	if s := k.Site(); s != nil {
		siteName = s.Name
	}
	k.metrics.ObserveDispatch(siteName, info.Module, resp.Status, start)
	span.SetAttributes(
		attribute.String("infernum.module", info.Module),
		attribute.String("infernum.action", info.Action),
		attribute.Int("http.response.status_code", resp.Status),
	)
	logger.Debug("Request dispatched.", "page", info.PagePath, "module", info.Module, "action", info.Action, "status", resp.Status)
	return resp, nil
}

func (k *Kernel) runModule(ctx context.Context, req *http.Request, app extension.Application, info *DispatchInfo, extra map[string]string) (*extension.Response, error) {
	module, meta, err := k.LoadModule(ctx, info.Module, extra)
	if err != nil {
		return nil, err
	}
	if err := k.runPlugins(ctx, app); err != nil {
		return nil, err
	}

	info.Running = meta.Name
	resp, err := module.Run(extension.WithRunning(ctx, meta), app, req, info.Action, info.Arguments)
	if err != nil {
		return nil, fmt.Errorf("module %q action %q: %w", meta.Name, info.Action, err)
	}
	if resp == nil {
		resp = extension.NewResponse(nil, http.StatusNoContent)
	}
	return resp, nil
}

func (k *Kernel) runPlugins(ctx context.Context, app extension.Application) error {
	for _, p := range k.pluginsSnapshot() {
		if err := p.instance.Run(extension.WithRunning(ctx, p.meta), app); err != nil {
			return fmt.Errorf("plugin %q: %w", p.meta.Name, err)
		}
	}
	return nil
}

type notFoundData struct {
	PagePath  string
	SiteTitle string
}

func (k *Kernel) notFound(ctx context.Context, app extension.Application, pagePath string) (*extension.Response, error) {
	if err := k.runPlugins(ctx, app); err != nil {
		return nil, err
	}

	title := ""
	if s := k.Site(); s != nil {
		title = s.Title
	}
	body, err := k.views.Render(view.NotFound, notFoundData{PagePath: pagePath, SiteTitle: title})
	if err != nil {
		return nil, err
	}
	return extension.NewResponse(body, http.StatusNotFound), nil
}

// Handle dispatches req and writes the response to w.
func (k *Kernel) Handle(w http.ResponseWriter, req *http.Request, app extension.Application) error {
	resp, err := k.Dispatch(req.Context(), req, app)
	if err != nil {
		return err
	}
	return resp.Send(w)
}
