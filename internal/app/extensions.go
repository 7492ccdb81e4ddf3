package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/specialistvlad/infernum/internal/extension"
)

// WriteExtensions prints one line per installed extension: kind, name,
// version, required plugins and title.
func (a *App) WriteExtensions(ctx context.Context, w io.Writer) error {
	cat, err := a.Extensions(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tVERSION\tREQUIRES\tTITLE")
	for _, kind := range []extension.Kind{extension.KindModule, extension.KindPlugin} {
		for _, m := range cat.List(kind) {
			requires := "-"
			if len(m.RequiredPlugins) > 0 {
				requires = strings.Join(m.RequiredPlugins, ",")
			}
			version := m.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", kind, m.Name, version, requires, m.Title)
		}
	}
	return tw.Flush()
}
