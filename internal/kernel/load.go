package kernel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
)

// LoadPlugin returns the plugin name, constructing and booting it (and the
// plugins it requires) on first use. A plugin is booted at most once per
// kernel.
func (k *Kernel) LoadPlugin(ctx context.Context, name string) (extension.Plugin, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.loadPlugin(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.instance, nil
}

// loadPlugin must be called with k.mu held.
func (k *Kernel) loadPlugin(ctx context.Context, name string) (*loadedPlugin, error) {
	if p, ok := k.pluginIndex[name]; ok {
		return p, nil
	}

	meta, ok := k.catalog.Lookup(extension.KindPlugin, name)
	if !ok {
		return nil, &extension.NotInstalledError{Kind: extension.KindPlugin, Name: name}
	}
	if i := slices.Index(k.loading, name); i >= 0 {
		chain := append(slices.Clone(k.loading[i:]), name)
		return nil, &CyclicDependencyError{Chain: chain}
	}

	k.loading = append(k.loading, name)
	defer func() { k.loading = k.loading[:len(k.loading)-1] }()

	if err := k.requirePlugins(ctx, meta); err != nil {
		return nil, err
	}

	instance, _, err := k.catalog.NewPlugin(name)
	if err != nil {
		return nil, err
	}
	k.prepare(meta)

	bootCtx := extension.WithRunning(ctx, meta)
	if err := instance.Boot(bootCtx); err != nil {
		return nil, fmt.Errorf("plugin %q failed to boot: %w", name, err)
	}

	p := &loadedPlugin{meta: meta, instance: instance}
	k.loadedPlugins = append(k.loadedPlugins, p)
	k.pluginIndex[name] = p
	k.metrics.IncrementPluginLoaded()
	ctxlog.FromContext(ctx).Debug("Plugin loaded.", "plugin", name)
	return p, nil
}

// requirePlugins loads the plugins meta depends on, in declaration order.
// A missing plugin is reported at the boundary of the dependent extension.
func (k *Kernel) requirePlugins(ctx context.Context, meta *extension.Meta) error {
	for _, dep := range meta.RequiredPlugins {
		if _, err := k.loadPlugin(ctx, dep); err != nil {
			// Only dep itself being absent is re-signalled here; a deeper
			// DependencyError already names the missing plugin.
			var (
				nie    *extension.NotInstalledError
				depErr *DependencyError
			)
			if !errors.As(err, &depErr) && errors.As(err, &nie) {
				return &DependencyError{
					DependentKind: meta.Kind,
					Dependent:     meta.Name,
					Dependency:    dep,
					Err:           nie,
				}
			}
			return err
		}
	}
	return nil
}

// LoadModule builds a fresh instance of module name, loading the plugins it
// requires first. extra is the route's extra data and may be nil.
func (k *Kernel) LoadModule(ctx context.Context, name string, extra map[string]string) (extension.Module, *extension.Meta, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	meta, ok := k.catalog.Lookup(extension.KindModule, name)
	if !ok {
		return nil, nil, &extension.NotInstalledError{Kind: extension.KindModule, Name: name}
	}

	instance, _, err := k.catalog.NewModule(name, extra)
	if err != nil {
		return nil, nil, err
	}
	if err := k.requirePlugins(ctx, meta); err != nil {
		return nil, nil, err
	}
	k.prepare(meta)

	k.loadedModule = name
	k.metrics.IncrementModuleLoaded(name)
	ctxlog.FromContext(ctx).Debug("Module loaded.", "module", name)
	return instance, meta, nil
}

// prepare registers the extension's sources with the loader when it ships any.
func (k *Kernel) prepare(meta *extension.Meta) {
	if meta.ProvidesCapability(extension.CapabilityLibraries) {
		k.Loader().AddSource(meta.Namespace, meta.Path)
	}
}

// ModuleExists reports whether module name is installed.
func (k *Kernel) ModuleExists(name string) bool {
	return k.catalog.Installed(extension.KindModule, name)
}

// PluginExists reports whether plugin name is installed.
func (k *Kernel) PluginExists(name string) bool {
	return k.catalog.Installed(extension.KindPlugin, name)
}

// ModulePath returns the directory module name is (or would be) installed in.
func (k *Kernel) ModulePath(name string) string {
	return filepath.Join(k.path, extension.KindModule.Dir(), name)
}

// PluginPath returns the directory plugin name is (or would be) installed in.
func (k *Kernel) PluginPath(name string) string {
	return filepath.Join(k.path, extension.KindPlugin.Dir(), name)
}
