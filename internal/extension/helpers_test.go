package extension

import (
	"context"

	"github.com/specialistvlad/infernum/internal/ctxlog"
)

func ctxlogDiscard() context.Context {
	return ctxlog.Discard(context.Background())
}
