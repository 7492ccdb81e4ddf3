package app

import (
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/modules/blog"
	"github.com/specialistvlad/infernum/modules/home"
	"github.com/specialistvlad/infernum/plugins/analytics"
	"github.com/specialistvlad/infernum/plugins/poweredby"
)

// coreExtensions is the definitive list of all extensions that are compiled
// into the infernum binary. An installation still has to ship a manifest
// for each one it wants to use.
var coreExtensions = []extension.Package{
	&home.Package{},
	&blog.Package{},
	&analytics.Package{},
	&poweredby.Package{},
}
