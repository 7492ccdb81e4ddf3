package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// HCLLoader is the HCL-specific implementation of the Loader interface.
type HCLLoader struct{}

// NewHCLLoader creates a new HCL configuration loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// systemFile is the schema of config.hcl.
type systemFile struct {
	EnableMultisite bool              `hcl:"enable_multisite,optional"`
	DefaultSite     string            `hcl:"default_site,optional"`
	Sites           map[string]string `hcl:"sites,optional"`
	TrustProxy      bool              `hcl:"trust_proxy,optional"`
	Database        *databaseBlock    `hcl:"database,block"`
	Settings        hcl.Expression    `hcl:"settings,optional"`
	Remain          hcl.Body          `hcl:",remain"`
}

type databaseBlock struct {
	Driver string `hcl:"driver"`
	DSN    string `hcl:"dsn"`
	Prefix string `hcl:"prefix,optional"`
}

// Load parses and decodes config.hcl.
func (l *HCLLoader) Load(ctx context.Context, path string) (*System, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loader started.", "path", path)

	var f systemFile
	if err := DecodeHCLFile(path, &f); err != nil {
		return nil, err
	}

	settings, err := DecodeSettings(f.Settings)
	if err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
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

	logger.Debug("HCL config loaded.", "multisite", sys.EnableMultisite, "sites", len(sys.Sites), "settings", len(sys.Settings))
	return sys, nil
}

// DecodeHCLFile parses the HCL file at path and decodes it into target,
// which must be a pointer to a gohcl-tagged struct.
func DecodeHCLFile(path string, target any) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, target); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return nil
}

// DecodeSettings evaluates a free-form `settings = { ... }` attribute. Each
// element is converted to its string form, so numbers and booleans can be
// written naturally in the file.
func DecodeSettings(expr hcl.Expression) (map[string]string, error) {
	out := make(map[string]string)
	if expr == nil {
		return out, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return out, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("settings must be an object, got %s", ty.FriendlyName())
	}

	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.IsNull() {
			continue
		}
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("setting %q: %w", k.AsString(), err)
		}
		out[k.AsString()] = s.AsString()
	}
	return out, nil
}
