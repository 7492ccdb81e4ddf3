// Package site models an installation's sites: which plugins a site
// requires, which modules it routes to and its own settings.
package site

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/infernum/internal/config"
	"github.com/specialistvlad/infernum/internal/ctxlog"
)

// ManifestFile is the name of a site's manifest inside <root>/sites/<name>.
const ManifestFile = "site.hcl"

// Site is a loaded site manifest. It is cached by the kernel, so it stays
// plain data.
type Site struct {
	Name     string            `msgpack:"name"`
	Title    string            `msgpack:"title"`
	Plugins  []string          `msgpack:"plugins"`
	Routes   []RouteBinding    `msgpack:"routes"`
	Settings map[string]string `msgpack:"settings"`
}

// RouteBinding mounts a module on the site's route tree.
type RouteBinding struct {
	Module string            `msgpack:"module"`
	Alias  string            `msgpack:"alias"` // empty means the module name
	Extra  map[string]string `msgpack:"extra"`
}

// Setting returns the site setting stored under key, or def.
func (s *Site) Setting(key, def string) string {
	if v, ok := s.Settings[key]; ok {
		return v
	}
	return def
}

type siteFile struct {
	Title    string         `hcl:"title,optional"`
	Plugins  []string       `hcl:"plugins,optional"`
	Routes   []routeBlock   `hcl:"route,block"`
	Settings hcl.Expression `hcl:"settings,optional"`
}

type routeBlock struct {
	Module string         `hcl:"module,label"`
	Alias  string         `hcl:"alias,optional"`
	Extra  hcl.Expression `hcl:"extra,optional"`
}

// Path returns the directory of site name below root.
func Path(root, name string) string {
	return filepath.Join(root, "sites", name)
}

// Load reads the manifest of site name below root.
func Load(ctx context.Context, root, name string) (*Site, error) {
	logger := ctxlog.FromContext(ctx)
	path := filepath.Join(Path(root, name), ManifestFile)
	logger.Debug("Loading site manifest.", "site", name, "path", path)

	var f siteFile
	if err := config.DecodeHCLFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to load site %q: %w", name, err)
	}

	settings, err := config.DecodeSettings(f.Settings)
	if err != nil {
		return nil, fmt.Errorf("invalid settings in site %q: %w", name, err)
	}

	s := &Site{
		Name:     name,
		Title:    f.Title,
		Plugins:  f.Plugins,
		Settings: settings,
	}
	if s.Title == "" {
		s.Title = name
	}

	seen := make(map[string]string)
	for _, r := range f.Routes {
		extra, err := config.DecodeSettings(r.Extra)
		if err != nil {
			return nil, fmt.Errorf("invalid extra for route %q in site %q: %w", r.Module, name, err)
		}
		if len(extra) == 0 {
			extra = nil
		}
		b := RouteBinding{Module: r.Module, Alias: r.Alias, Extra: extra}
		alias := b.Alias
		if alias == "" {
			alias = b.Module
		}
		if prev, dup := seen[alias]; dup {
			return nil, fmt.Errorf("site %q mounts both %q and %q on alias %q", name, prev, b.Module, alias)
		}
		seen[alias] = b.Module
		s.Routes = append(s.Routes, b)
	}

	logger.Debug("Site manifest loaded.", "site", name, "plugins", len(s.Plugins), "routes", len(s.Routes))
	return s, nil
}
