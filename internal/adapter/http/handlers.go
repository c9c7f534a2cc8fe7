package http

import (
	"net/http"

	"github.com/loomhq/loom/internal/domain/workspace"
	"github.com/loomhq/loom/internal/port/provider"
	"github.com/loomhq/loom/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workspaces *service.Manager
}

// workspaceResponse is the wire shape of a live workspace.
type workspaceResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// openRequest carries the optional provider hint and initial configuration
// for opening a workspace.
type openRequest struct {
	Provider string            `json:"provider,omitempty"`
	Config   map[string]string `json:"config,omitempty"`
}

// configRequest carries configuration entries to persist for a workspace.
type configRequest struct {
	Config map[string]string `json:"config"`
}

// documentResponse is the wire shape of a workspace document snapshot.
type documentResponse struct {
	Workspace string            `json:"workspace"`
	Rev       uint64            `json:"rev"`
	Entries   map[string]string `json:"entries"`
}

// entryRequest carries a single document entry value.
type entryRequest struct {
	Value string `json:"value"`
}

// ListWorkspaces handles GET /workspaces.
func (h *Handlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Workspaces.ListWorkspaces(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list workspaces")
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// OpenWorkspace handles POST /workspaces/{id}/open. The body may carry a
// provider hint and initial configuration; both are optional.
func (h *Handlers) OpenWorkspace(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	var req openRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[openRequest](w, r); !ok {
			return
		}
	}

	ws, err := h.Workspaces.GetOrCreate(r.Context(), id, workspace.OpenOptions{
		Provider: req.Provider,
		Config:   workspace.Config(req.Config),
	})
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	if ws == nil {
		writeError(w, http.StatusBadRequest, "workspace id is required")
		return
	}

	writeJSON(w, http.StatusOK, workspaceResponse{ID: ws.ID, Provider: ws.Provider.ID()})
}

// StopWorkspace handles POST /workspaces/{id}/stop.
func (h *Handlers) StopWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.Workspaces.StopWorkspace(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "failed to stop workspace")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EraseWorkspace handles DELETE /workspaces/{id}.
func (h *Handlers) EraseWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.Workspaces.EraseWorkspace(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "failed to erase workspace")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EraseAllWorkspaces handles DELETE /workspaces.
func (h *Handlers) EraseAllWorkspaces(w http.ResponseWriter, r *http.Request) {
	if err := h.Workspaces.EraseAllWorkspaces(r.Context()); err != nil {
		writeDomainError(w, err, "failed to erase workspaces")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetWorkspaceConfig handles PUT /workspaces/{id}/config. Configuration can
// be staged before the workspace is ever opened.
func (h *Handlers) SetWorkspaceConfig(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "workspace id is required")
		return
	}

	req, ok := readJSON[configRequest](w, r)
	if !ok {
		return
	}

	if err := h.Workspaces.SetConfig(r.Context(), id, workspace.Config(req.Config)); err != nil {
		writeDomainError(w, err, "failed to write config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDocument handles GET /workspaces/{id}/document. Opening the workspace
// on demand means a cold read still returns its persisted document.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.liveWorkspace(w, r)
	if !ok {
		return
	}

	doc := ws.Document()
	writeJSON(w, http.StatusOK, documentResponse{
		Workspace: ws.ID,
		Rev:       doc.Rev(),
		Entries:   doc.Snapshot(),
	})
}

// SetDocumentEntry handles PUT /workspaces/{id}/document/{key}.
func (h *Handlers) SetDocumentEntry(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.liveWorkspace(w, r)
	if !ok {
		return
	}

	req, okBody := readJSON[entryRequest](w, r)
	if !okBody {
		return
	}

	ws.Document().Set(urlParam(r, "key"), req.Value)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveDocumentEntry handles DELETE /workspaces/{id}/document/{key}.
func (h *Handlers) RemoveDocumentEntry(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.liveWorkspace(w, r)
	if !ok {
		return
	}

	ws.Document().Remove(urlParam(r, "key"))
	w.WriteHeader(http.StatusNoContent)
}

// ListProviders handles GET /providers.
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, provider.Available())
}

// liveWorkspace resolves the {id} route param to a live workspace, writing
// the error response on failure.
func (h *Handlers) liveWorkspace(w http.ResponseWriter, r *http.Request) (*service.Workspace, bool) {
	ws, err := h.Workspaces.GetOrCreate(r.Context(), urlParam(r, "id"), workspace.OpenOptions{})
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return nil, false
	}
	if ws == nil {
		writeError(w, http.StatusBadRequest, "workspace id is required")
		return nil, false
	}
	return ws, true
}
