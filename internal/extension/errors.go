package extension

import (
	"errors"
	"fmt"
)

// ErrNotInstalled matches every NotInstalledError.
var ErrNotInstalled = errors.New("extension not installed")

// NotInstalledError reports a module or plugin name with no installed backing.
type NotInstalledError struct {
	Kind Kind
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s %q is not installed", e.Kind, e.Name)
}

func (e *NotInstalledError) Is(target error) bool { return target == ErrNotInstalled }
