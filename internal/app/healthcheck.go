package app

import (
	"fmt"
	"net/http"

	"github.com/specialistvlad/infernum/internal/ctxlog"
)

// healthHandler reports liveness. It also verifies the cache store answers,
// since no page can be served without it.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)

	if _, err := a.store.Contains(r.Context(), "health"); err != nil {
		logger.Warn("Health check failed: cache store unavailable.", "error", err)
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
