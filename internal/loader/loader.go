// Package loader keeps track of the source directories extensions register
// under a namespace, so views and assets can be addressed as
// "@namespace/name" regardless of where an extension is installed.
package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrBadReference is returned for references not of the form "@namespace/name".
var ErrBadReference = errors.New("invalid namespaced reference")

// Loader is a namespace -> directory registry. It is safe for concurrent use.
type Loader struct {
	mu      sync.RWMutex
	sources map[string]string
}

// New creates an empty loader.
func New() *Loader {
	return &Loader{sources: make(map[string]string)}
}

// AddSource registers path under namespace. A later registration of the
// same namespace replaces the earlier one.
func (l *Loader) AddSource(namespace, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[namespace] = path
}

// Source returns the directory registered under namespace.
func (l *Loader) Source(namespace string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.sources[namespace]
	return p, ok
}

// Namespaces lists the registered namespaces, sorted.
func (l *Loader) Namespaces() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.sources))
	for ns := range l.sources {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Split breaks "@namespace/name" into its parts.
func Split(ref string) (namespace, name string, err error) {
	rest, ok := strings.CutPrefix(ref, "@")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrBadReference, ref)
	}
	namespace, name, ok = strings.Cut(rest, "/")
	if !ok || namespace == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadReference, ref)
	}
	return namespace, name, nil
}
