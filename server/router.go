package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the service routes. Unsupported methods on known paths
// answer 405 and preflight requests answer 204, matching what payment and
// admin callers expect.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware(handler.logger))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
	})
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", handler.handleHealth)
	r.Post("/webhook", handler.handleWebhook)
	r.Post("/admin/issue", handler.handleAdminIssue)

	return r
}

func recoverMiddleware(logger interface {
	Error(msg string, args ...any)
}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
					}
					writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
