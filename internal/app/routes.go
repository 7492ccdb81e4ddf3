package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/kernel"
)

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.withLogger)
	r.Use(a.recoverPanics)

	r.Get("/health", a.healthHandler)
	r.Handle("/metrics", a.metrics.Handler())
	r.HandleFunc("/*", a.serveSite)
	return r
}

// withLogger stores the app logger, tagged with the request id, in the
// request context and logs every finished request.
func (a *App) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := a.logger.With("request_id", middleware.GetReqID(r.Context()))
		ctx := ctxlog.WithLogger(r.Context(), logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Debug("Request served.", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "bytes", ww.BytesWritten(), "duration", time.Since(start))
	})
}

// recoverPanics turns a panicking handler into a logged 500.
func (a *App) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctxlog.FromContext(r.Context()).Error("Handler panicked.", "panic", rec, "path", r.URL.Path)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *App) serveSite(w http.ResponseWriter, r *http.Request) {
	s, err := a.site(r.Context(), r)
	if err != nil {
		logger := ctxlog.FromContext(r.Context())
		var cfgErr *kernel.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Error("Site configuration error.", "error", err)
		} else {
			logger.Error("Site could not be booted.", "error", err)
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.ServeHTTP(w, r)
}
