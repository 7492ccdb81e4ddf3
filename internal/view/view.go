// Package view renders html/template views addressed as "@namespace/name".
//
// A namespace resolves to the directory an extension registered with the
// loader; the view is read from <dir>/views/<name>.html. The "global"
// namespace falls back to the views compiled into the binary when no
// installation directory overrides it.
package view

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/specialistvlad/infernum/internal/loader"
)

// GlobalNamespace holds the views shared by every site.
const GlobalNamespace = "global"

// NotFound is the view rendered when no module serves a page.
const NotFound = "@global/404_body"

// ErrNotFound is returned when a view exists in no source.
var ErrNotFound = errors.New("view not found")

//go:embed templates
var builtin embed.FS

// Sources resolves namespaces to directories.
type Sources interface {
	Source(namespace string) (string, bool)
}

// Renderer looks views up through Sources and renders them.
type Renderer struct {
	sources Sources
}

// NewRenderer creates a renderer over sources.
func NewRenderer(sources Sources) *Renderer {
	return &Renderer{sources: sources}
}

// Render executes the view ref with data.
func (r *Renderer) Render(ref string, data any) ([]byte, error) {
	tmpl, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render view %s: %w", ref, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) lookup(ref string) (*template.Template, error) {
	ns, name, err := loader.Split(ref)
	if err != nil {
		return nil, err
	}
	file := name + ".html"

	if dir, ok := r.sources.Source(ns); ok {
		p := filepath.Join(dir, "views", filepath.FromSlash(file))
		if _, err := os.Stat(p); err == nil {
			return template.ParseFiles(p)
		}
	}

	if ns == GlobalNamespace {
		p := path.Join("templates", GlobalNamespace, file)
		if _, err := fs.Stat(builtin, p); err == nil {
			return template.ParseFS(builtin, p)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}
