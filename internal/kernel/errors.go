package kernel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/infernum/internal/extension"
)

var (
	// ErrNotBooted is returned by Dispatch and Handle before Boot succeeded.
	ErrNotBooted = errors.New("kernel must be booted to handle requests")
	// ErrAlreadyBooted is returned by a second Boot.
	ErrAlreadyBooted = errors.New("kernel is already booted")
	// ErrCyclicDependency matches every CyclicDependencyError.
	ErrCyclicDependency = errors.New("cyclic plugin dependency")
)

// ConfigurationError is a fatal problem with the installation's
// configuration: an unloadable config file or site manifest, or a site that
// depends on an extension that is not installed.
type ConfigurationError struct {
	Site       string
	Kind       extension.Kind // zero unless Dependency is set
	Dependency string
	Err        error
}

func (e *ConfigurationError) Error() string {
	if e.Dependency != "" {
		return fmt.Sprintf("site %q depends on %s %q but it is not installed", e.Site, e.Kind, e.Dependency)
	}
	if e.Site != "" {
		return fmt.Sprintf("site %q: %v", e.Site, e.Err)
	}
	return e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DependencyError reports an extension requiring a plugin that is not
// installed.
type DependencyError struct {
	DependentKind extension.Kind
	Dependent     string
	Dependency    string
	Err           error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %q depends on plugin %q but it is not installed", e.DependentKind, e.Dependent, e.Dependency)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// CyclicDependencyError reports plugins requiring each other. Chain starts
// and ends with the same plugin.
type CyclicDependencyError struct {
	Chain []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic plugin dependency: %s", strings.Join(e.Chain, " -> "))
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }
