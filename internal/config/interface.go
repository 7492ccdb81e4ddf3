package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Locate when an installation has no config file.
var ErrNotFound = errors.New("configuration file not found")

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the file at path and translates it into the
	// format-agnostic model.
	Load(ctx context.Context, path string) (*System, error)
}

// candidates lists the config file names probed at an installation root,
// in order of preference.
var candidates = []string{"config.hcl", "config.yml", "config.yaml"}

// Locate finds the config file of the installation rooted at root.
func Locate(root string) (string, error) {
	for _, name := range candidates {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("error accessing %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, root)
}

// LoaderFor picks the loader matching the file extension of path.
func LoaderFor(path string) (Loader, error) {
	switch filepath.Ext(path) {
	case ".hcl":
		return NewHCLLoader(), nil
	case ".yml", ".yaml":
		return NewYAMLLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", filepath.Ext(path))
	}
}

// Load locates and loads the configuration of the installation at root.
func Load(ctx context.Context, root string) (*System, error) {
	path, err := Locate(root)
	if err != nil {
		return nil, err
	}
	loader, err := LoaderFor(path)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, path)
}
