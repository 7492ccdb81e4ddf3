package extension

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/fsutil"
)

// Catalog is the set of extensions installed below an installation root.
// It is built once by Scan and is read-only afterwards.
type Catalog struct {
	root     string
	registry *Registry
	modules  map[string]*Meta
	plugins  map[string]*Meta
}

// Scan walks root/modules and root/plugins for manifests and pairs each one
// with its registered factory. A manifest without a factory, or a factory
// without a manifest, is logged and left out: such an extension is not
// installed. Broken manifests are fatal.
func Scan(ctx context.Context, root string, reg *Registry) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)
	c := &Catalog{
		root:     root,
		registry: reg,
		modules:  make(map[string]*Meta),
		plugins:  make(map[string]*Meta),
	}

	for _, kind := range []Kind{KindModule, KindPlugin} {
		dir := filepath.Join(root, kind.Dir())
		manifests, err := fsutil.FindFilesNamed(dir, ManifestFile, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s directory %s: %w", kind, dir, err)
		}

		found := c.index(kind)
		for _, manifest := range manifests {
			extDir := filepath.Dir(manifest)
			if extDir == dir {
				continue
			}
			meta, err := LoadMeta(kind, extDir)
			if err != nil {
				return nil, err
			}
			if !reg.has(kind, meta.Name) {
				logger.Warn("Extension has a manifest but no registered implementation; skipping.", "kind", kind.String(), "name", meta.Name)
				continue
			}
			found[meta.Name] = meta
		}

		for _, name := range reg.Names(kind) {
			if _, ok := found[name]; !ok {
				logger.Debug("Registered extension is not installed.", "kind", kind.String(), "name", name)
			}
		}
	}

	logger.Info("Extensions scanned.", "root", root, "modules", len(c.modules), "plugins", len(c.plugins))
	return c, nil
}

func (c *Catalog) index(kind Kind) map[string]*Meta {
	if kind == KindModule {
		return c.modules
	}
	return c.plugins
}

// Root returns the installation root the catalog was scanned from.
func (c *Catalog) Root() string { return c.root }

// Lookup returns the manifest of an installed extension.
func (c *Catalog) Lookup(kind Kind, name string) (*Meta, bool) {
	m, ok := c.index(kind)[name]
	return m, ok
}

// Installed reports whether kind/name is installed.
func (c *Catalog) Installed(kind Kind, name string) bool {
	_, ok := c.Lookup(kind, name)
	return ok
}

// List returns the manifests of every installed extension of kind, sorted by name.
func (c *Catalog) List(kind Kind) []*Meta {
	idx := c.index(kind)
	out := make([]*Meta, 0, len(idx))
	for _, m := range idx {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewModule builds a fresh instance of module name.
func (c *Catalog) NewModule(name string, extra map[string]string) (Module, *Meta, error) {
	meta, ok := c.modules[name]
	if !ok {
		return nil, nil, &NotInstalledError{Kind: KindModule, Name: name}
	}
	m, err := c.registry.modules[name](meta, extra)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct module %q: %w", name, err)
	}
	return m, meta, nil
}

// NewPlugin builds an instance of plugin name.
func (c *Catalog) NewPlugin(name string) (Plugin, *Meta, error) {
	meta, ok := c.plugins[name]
	if !ok {
		return nil, nil, &NotInstalledError{Kind: KindPlugin, Name: name}
	}
	p, err := c.registry.plugins[name](meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct plugin %q: %w", name, err)
	}
	return p, meta, nil
}
