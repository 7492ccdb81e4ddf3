// Package home serves the front page of a site.
package home

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/specialistvlad/infernum/internal/container"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/kernel"
	"github.com/specialistvlad/infernum/internal/loader"
	"github.com/specialistvlad/infernum/internal/view"
)

// Name is the extension name the installation manifest must use.
const Name = "home"

// SettingGreeting is rendered under the site title.
const SettingGreeting = "home.greeting"

//go:embed templates/index.html
var fallbackIndex string

var fallback = template.Must(template.New("index").Parse(fallbackIndex))

// Package registers the home module.
type Package struct{}

// Register implements extension.Package.
func (p *Package) Register(r *extension.Registry) {
	r.RegisterModule(Name, New)
}

// Module renders the "index" action. An extension directory providing
// libraries may override it with views/index.html.
type Module struct {
	meta *extension.Meta
}

// New is the module factory.
func New(meta *extension.Meta, _ map[string]string) (extension.Module, error) {
	return &Module{meta: meta}, nil
}

type indexData struct {
	SiteTitle string
	Greeting  string
	Arguments []string
}

// Run implements extension.Module.
func (m *Module) Run(ctx context.Context, app extension.Application, req *http.Request, action string, args []string) (*extension.Response, error) {
	if action != "index" {
		return extension.NewResponse([]byte(http.StatusText(http.StatusNotFound)), http.StatusNotFound), nil
	}

	data := indexData{
		SiteTitle: app.Setting("site.title", "Infernum"),
		Greeting:  app.Setting(SettingGreeting, "Welcome."),
		Arguments: args,
	}

	ld, err := container.Lookup[*loader.Loader](app.Services(), kernel.ServiceLoader)
	if err != nil {
		return nil, err
	}
	body, err := view.NewRenderer(ld).Render("@"+m.meta.Namespace+"/index", data)
	switch {
	case err == nil:
	case errors.Is(err, view.ErrNotFound):
		ctxlog.FromContext(ctx).Debug("No index view installed; using the built-in one.", "namespace", m.meta.Namespace)
		var buf bytes.Buffer
		if err := fallback.Execute(&buf, data); err != nil {
			return nil, err
		}
		body = buf.Bytes()
	default:
		return nil, err
	}
	return extension.NewResponse(body, http.StatusOK), nil
}
