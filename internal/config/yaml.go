package config

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// YAMLLoader reads config.yml, the format older installations ship with.
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAML configuration loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

type yamlFile struct {
	EnableMultisite bool              `yaml:"enable_multisite"`
	DefaultSite     string            `yaml:"default_site"`
	Sites           map[string]string `yaml:"sites"`
	TrustProxy      bool              `yaml:"trust_proxy"`
	Database        *struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"database"`
	Settings map[string]yaml.Node `yaml:"settings"`
}

// Load reads and decodes a YAML config file.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*System, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML config loader started.", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f yamlFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}

	settings := make(map[string]string, len(f.Settings))
	for k, node := range f.Settings {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("invalid settings in %s: setting %q must be a scalar", path, k)
		}
		settings[k] = node.Value
	}

	sys := &System{
		EnableMultisite: f.EnableMultisite,
		DefaultSite:     f.DefaultSite,
		Sites:           f.Sites,
		TrustProxy:      f.TrustProxy,
		Settings:        settings,
	}
	if f.Database != nil {
		sys.Database = Database{Driver: f.Database.Driver, DSN: f.Database.DSN, Prefix: f.Database.Prefix}
	}
	return sys, nil
}
