package extension

import (
	"context"

	"github.com/specialistvlad/infernum/internal/ctxlog"
)

type runningKey struct{}

// WithRunning marks meta as the extension executing under ctx and tags the
// context logger with it.
func WithRunning(ctx context.Context, meta *Meta) context.Context {
	ctx = context.WithValue(ctx, runningKey{}, meta)
	return ctxlog.With(ctx, "extension", meta.Name, "extension_kind", meta.Kind.String())
}

// Running returns the extension executing under ctx, or nil outside of any
// extension hook.
func Running(ctx context.Context) *Meta {
	m, _ := ctx.Value(runningKey{}).(*Meta)
	return m
}
