package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/infernum/internal/ctxlog"
)

// Run serves HTTP until ctx is cancelled, then shuts the server down
// gracefully and releases every site.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.httpServer = &http.Server{
		Addr:    a.config.Addr,
		Handler: a.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("🔥 Infernum listening", "address", a.config.Addr, "root", a.config.Root)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.logger.Debug("App.Run method finished.")
	return err
}

func (a *App) shutdown() error {
	a.logger.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	a.logger.Debug("HTTP server shut down gracefully.")
	return nil
}
