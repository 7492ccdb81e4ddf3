package kernel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/specialistvlad/infernum/internal/cache"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/site"
)

// Boot resolves the site serving req, loads the plugins it requires and
// mounts its routes. It must succeed once before requests are dispatched.
func (k *Kernel) Boot(ctx context.Context, req *http.Request) (*site.Site, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.booted {
		return nil, ErrAlreadyBooted
	}
	logger := ctxlog.FromContext(ctx)

	sys := k.System()
	k.domain = RequestDomain(req)
	k.secure = RequestSecure(req, sys.TrustProxy)
	name := sys.SiteFor(k.domain)
	logger.Debug("Booting site.", "site", name, "domain", k.domain, "secure", k.secure)

	s, err := cache.Remember(ctx, k.Store(), "site."+name, cache.DefaultLifetime, func(ctx context.Context) (*site.Site, error) {
		return site.Load(ctx, k.path, name)
	})
	if err != nil {
		return nil, &ConfigurationError{Site: name, Err: err}
	}

	for _, plugin := range s.Plugins {
		if _, err := k.loadPlugin(ctx, plugin); err != nil {
			return nil, sitePluginError(name, plugin, err)
		}
	}

	rt := k.Router()
	for _, route := range s.Routes {
		if !k.ModuleExists(route.Module) {
			return nil, &ConfigurationError{
				Site:       name,
				Kind:       extension.KindModule,
				Dependency: route.Module,
				Err:        &extension.NotInstalledError{Kind: extension.KindModule, Name: route.Module},
			}
		}
		if err := rt.MountModule(route.Module, route.Alias, route.Extra); err != nil {
			return nil, &ConfigurationError{Site: name, Err: err}
		}
	}

	k.site = s
	k.booted = true
	logger.Info("Site booted.", "site", name, "plugins", len(k.loadedPlugins), "routes", len(s.Routes))
	return s, nil
}

// sitePluginError turns a failure to load one of the site's plugins into a
// ConfigurationError when the installation is at fault. Missing plugins are
// reported at whatever depth they occur; cycles keep their chain.
func sitePluginError(siteName, plugin string, err error) error {
	var (
		depErr *DependencyError
		nie    *extension.NotInstalledError
		cycErr *CyclicDependencyError
	)
	switch {
	case errors.As(err, &depErr):
		return &ConfigurationError{Site: siteName, Kind: extension.KindPlugin, Dependency: depErr.Dependency, Err: err}
	case errors.As(err, &nie):
		return &ConfigurationError{Site: siteName, Kind: extension.KindPlugin, Dependency: plugin, Err: err}
	case errors.As(err, &cycErr):
		return &ConfigurationError{Site: siteName, Err: err}
	default:
		return fmt.Errorf("site %q: %w", siteName, err)
	}
}

// RequestDomain returns the request's host without the port.
func RequestDomain(req *http.Request) string {
	host := req.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// RequestSecure reports whether req arrived over HTTPS. X-Forwarded-Proto
// is honored only behind a trusted proxy.
func RequestSecure(req *http.Request, trustProxy bool) bool {
	if req.TLS != nil {
		return true
	}
	return trustProxy && strings.EqualFold(req.Header.Get("X-Forwarded-Proto"), "https")
}
