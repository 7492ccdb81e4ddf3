package extension

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/specialistvlad/infernum/internal/config"
)

// Kind tells modules and plugins apart.
type Kind int

const (
	KindModule Kind = iota + 1
	KindPlugin
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindPlugin:
		return "plugin"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Dir is the directory below the installation root holding extensions of this kind.
func (k Kind) Dir() string {
	switch k {
	case KindModule:
		return "modules"
	case KindPlugin:
		return "plugins"
	default:
		return ""
	}
}

// ManifestFile is the file name every extension directory must contain.
const ManifestFile = "extension.hcl"

// CapabilityLibraries marks extensions that ship loadable sources (views,
// assets) which must be registered with the loader.
const CapabilityLibraries = "libraries"

// Meta describes an installed extension as declared by its manifest.
type Meta struct {
	Name            string
	Kind            Kind
	Title           string
	Version         string
	Description     string
	Namespace       string
	Path            string
	Provides        []string
	RequiredPlugins []string
}

// ProvidesCapability reports whether the manifest declares capability.
func (m *Meta) ProvidesCapability(capability string) bool {
	return slices.Contains(m.Provides, capability)
}

func (m *Meta) String() string {
	return m.Kind.String() + " " + m.Name
}

type manifestFile struct {
	Extension *manifestBlock `hcl:"extension,block"`
}

type manifestBlock struct {
	Title           string   `hcl:"title,optional"`
	Version         string   `hcl:"version,optional"`
	Description     string   `hcl:"description,optional"`
	Namespace       string   `hcl:"namespace,optional"`
	Provides        []string `hcl:"provides,optional"`
	RequiresPlugins []string `hcl:"requires_plugins,optional"`
}

// LoadMeta reads the manifest of the extension stored in dir. The directory
// name is the extension name; the namespace defaults to it.
func LoadMeta(kind Kind, dir string) (*Meta, error) {
	var f manifestFile
	if err := config.DecodeHCLFile(filepath.Join(dir, ManifestFile), &f); err != nil {
		return nil, err
	}
	if f.Extension == nil {
		return nil, fmt.Errorf("%s manifest in %s has no extension block", kind, dir)
	}

	name := filepath.Base(dir)
	m := &Meta{
		Name:            name,
		Kind:            kind,
		Title:           f.Extension.Title,
		Version:         f.Extension.Version,
		Description:     f.Extension.Description,
		Namespace:       f.Extension.Namespace,
		Path:            dir,
		Provides:        f.Extension.Provides,
		RequiredPlugins: f.Extension.RequiresPlugins,
	}
	if m.Namespace == "" {
		m.Namespace = name
	}
	if m.Title == "" {
		m.Title = name
	}
	return m, nil
}
