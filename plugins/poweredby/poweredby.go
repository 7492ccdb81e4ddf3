// Package poweredby marks every response of a site with an X-Powered-By
// header.
package poweredby

import (
	"context"

	"github.com/specialistvlad/infernum/internal/extension"
)

// Name is the extension name the installation manifest must use.
const Name = "poweredby"

// Service is the container key the application reads the header value from.
const Service = "poweredby"

// SettingValue overrides DefaultValue.
const SettingValue = "poweredby.value"

// DefaultValue is advertised when the site does not configure one.
const DefaultValue = "Infernum"

// Package registers the poweredby plugin.
type Package struct{}

// Register implements extension.Package.
func (p *Package) Register(r *extension.Registry) {
	r.RegisterPlugin(Name, func(_ *extension.Meta) (extension.Plugin, error) {
		return Plugin{}, nil
	})
}

// Plugin publishes the header value on every dispatch.
type Plugin struct{}

// Boot implements extension.Plugin.
func (Plugin) Boot(context.Context) error { return nil }

// Run implements extension.Plugin.
func (Plugin) Run(_ context.Context, app extension.Application) error {
	return app.Services().Set(Service, app.Setting(SettingValue, DefaultValue))
}
