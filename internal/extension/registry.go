package extension

import (
	"fmt"
	"log/slog"
	"sort"
)

// ModuleFactory builds a module instance. extra carries the route's extra
// data and may be nil.
type ModuleFactory func(meta *Meta, extra map[string]string) (Module, error)

// PluginFactory builds a plugin instance.
type PluginFactory func(meta *Meta) (Plugin, error)

// Package is implemented by every compiled-in extension package.
type Package interface {
	Register(r *Registry)
}

// Registry maps extension names to the Go code implementing them.
type Registry struct {
	modules map[string]ModuleFactory
	plugins map[string]PluginFactory
}

// NewRegistry creates an empty registry and lets every package register.
func NewRegistry(pkgs ...Package) *Registry {
	r := &Registry{
		modules: make(map[string]ModuleFactory),
		plugins: make(map[string]PluginFactory),
	}
	for _, p := range pkgs {
		p.Register(r)
	}
	return r
}

// RegisterModule registers the factory for module name. Registering a name
// twice is a programming error.
func (r *Registry) RegisterModule(name string, f ModuleFactory) {
	if _, exists := r.modules[name]; exists {
		panic(fmt.Sprintf("module factory with name '%s' already registered", name))
	}
	slog.Debug("Registering module factory.", "name", name)
	r.modules[name] = f
}

// RegisterPlugin registers the factory for plugin name.
func (r *Registry) RegisterPlugin(name string, f PluginFactory) {
	if _, exists := r.plugins[name]; exists {
		panic(fmt.Sprintf("plugin factory with name '%s' already registered", name))
	}
	slog.Debug("Registering plugin factory.", "name", name)
	r.plugins[name] = f
}

func (r *Registry) has(kind Kind, name string) bool {
	switch kind {
	case KindModule:
		_, ok := r.modules[name]
		return ok
	case KindPlugin:
		_, ok := r.plugins[name]
		return ok
	}
	return false
}

// Names lists the registered names of kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	var names []string
	switch kind {
	case KindModule:
		for n := range r.modules {
			names = append(names, n)
		}
	case KindPlugin:
		for n := range r.plugins {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
