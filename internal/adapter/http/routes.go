package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Providers
		r.Get("/providers", h.ListProviders)

		// Workspaces
		r.Get("/workspaces", h.ListWorkspaces)
		r.Delete("/workspaces", h.EraseAllWorkspaces)
		r.Post("/workspaces/{id}/open", h.OpenWorkspace)
		r.Post("/workspaces/{id}/stop", h.StopWorkspace)
		r.Delete("/workspaces/{id}", h.EraseWorkspace)
		r.Put("/workspaces/{id}/config", h.SetWorkspaceConfig)

		// Workspace document
		r.Get("/workspaces/{id}/document", h.GetDocument)
		r.Put("/workspaces/{id}/document/{key}", h.SetDocumentEntry)
		r.Delete("/workspaces/{id}/document/{key}", h.RemoveDocumentEntry)
	})
}
