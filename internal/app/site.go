package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/infernum/internal/container"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/database"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/kernel"
	"github.com/specialistvlad/infernum/internal/session"
	"github.com/specialistvlad/infernum/internal/site"
)

// Settings the application context understands.
const (
	SettingCookiePrefix    = "cookie.prefix"
	SettingSessionLifetime = "session.lifetime"
	SettingHeaderPrefix    = "header."
	// SettingTitle defaults to the title declared in site.hcl.
	SettingTitle = "site.title"
)

// ServicePoweredBy may be set by a plugin to have every response carry an
// X-Powered-By header.
const ServicePoweredBy = "poweredby"

// Site is the application context of one booted site. It implements
// extension.Application.
type Site struct {
	kernel   *kernel.Kernel
	site     *site.Site
	sessions *session.Manager
}

var _ extension.Application = (*Site)(nil)

// site returns the booted application context serving req, creating and
// booting it on first use. Site creation is serialized.
func (a *App) site(ctx context.Context, req *http.Request) (*Site, error) {
	sys, err := a.System(ctx)
	if err != nil {
		return nil, &kernel.ConfigurationError{Err: fmt.Errorf("unable to load system configuration: %w", err)}
	}
	name := sys.SiteFor(kernel.RequestDomain(req))

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sites[name]; ok {
		return s, nil
	}

	k, err := a.newKernel(ctx)
	if err != nil {
		return nil, err
	}
	booted, err := k.Boot(ctx, req)
	if err != nil {
		_ = k.Close()
		return nil, err
	}

	s := &Site{kernel: k, site: booted}
	if db, err := container.Lookup[*database.DB](k.Services(), kernel.ServiceDB); err == nil {
		s.sessions = session.NewManager(db, session.Options{
			CookiePrefix: s.Setting(SettingCookiePrefix, ""),
			Lifetime:     time.Duration(s.settingInt(SettingSessionLifetime, int(session.DefaultLifetime/time.Second))) * time.Second,
			Secure:       k.IsSecure(),
			Observer:     a.metrics,
		})
		if err := s.sessions.EnsureSchema(ctx); err != nil {
			_ = k.Close()
			return nil, err
		}
	}

	a.sites[name] = s
	ctxlog.FromContext(ctx).Info("Site ready.", "site", name, "sessions", s.sessions != nil)
	return s, nil
}

// Kernel returns the site's kernel.
func (s *Site) Kernel() *kernel.Kernel { return s.kernel }

// Setting returns the site setting under key, then the system setting, then def.
func (s *Site) Setting(key, def string) string {
	if v, ok := s.site.Settings[key]; ok {
		return v
	}
	if key == SettingTitle {
		return s.site.Title
	}
	return s.kernel.Config(key, def)
}

func (s *Site) settingInt(key string, def int) int {
	n, err := strconv.Atoi(s.Setting(key, ""))
	if err != nil {
		return def
	}
	return n
}

// Services exposes the kernel's service container.
func (s *Site) Services() *container.Container { return s.kernel.Services() }

// Finalize applies the site's "header.*" settings and the powered-by
// marker to resp.
func (s *Site) Finalize(resp *extension.Response) {
	for key, value := range s.site.Settings {
		if name, ok := strings.CutPrefix(key, SettingHeaderPrefix); ok && name != "" {
			resp.Header.Set(name, value)
		}
	}
	if v, err := container.Lookup[string](s.Services(), ServicePoweredBy); err == nil && v != "" {
		resp.Header.Set("X-Powered-By", v)
	}
}

// ServeHTTP resumes the visitor's session, dispatches the request and
// writes the response. Dispatch errors become a generic 500.
func (s *Site) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := ctxlog.With(req.Context(), "site", s.site.Name)
	logger := ctxlog.FromContext(ctx)

	var sess *session.Session
	if s.sessions != nil {
		var err error
		if sess, err = s.sessions.Init(ctx, req); err != nil {
			logger.Error("Session initialisation failed.", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		ctx = session.WithSession(ctx, sess)
	}

	req = req.WithContext(ctx)
	resp, err := s.kernel.Dispatch(ctx, req, s)
	if err != nil {
		logger.Error("Dispatch failed.", "page", kernel.RequestPagePath(req), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if sess != nil {
		resp.Header.Add("Set-Cookie", sess.Cookie().String())
	}
	if err := resp.Send(w); err != nil {
		logger.Warn("Writing response failed.", "error", err)
	}
}
