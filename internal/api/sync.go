package api

import (
	"net/http"

	"github.com/starford/plansync/internal/reconcile"
)

// Pull handles POST /api/sync/pull.
func (h *Handler) Pull(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.PullMerge(r.Context())
	if err != nil {
		writeError(w, "pull", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Push handles POST /api/sync/push. Remote failures are reported in the
// outcome; only a failed local save is an error.
//
//	@Summary		Save now
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	reconcile.SaveOutcome
//	@Failure		429	{object}	errResponse
//	@Failure		507	{object}	errResponse
//	@Router			/sync/push [post]
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	out, err := h.eng.Save(r.Context())
	if err != nil {
		writeError(w, "push", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Discover handles POST /api/sync/discover?mode=light|deep.
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	mode, err := reconcile.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rep, err := h.eng.Discover(r.Context(), mode)
	if err != nil {
		if rep.ReconnectRequired {
			writeJSON(w, http.StatusConflict, rep)
			return
		}
		writeError(w, "discover", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Status handles GET /api/sync/status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Status())
}

// SetCredential handles PUT /api/credential.
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.eng.SetCredential(r.Context(), req.Token); err != nil {
		writeError(w, "set credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCredential handles DELETE /api/credential.
func (h *Handler) ClearCredential(w http.ResponseWriter, _ *http.Request) {
	if err := h.eng.ClearCredential(); err != nil {
		writeError(w, "clear credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantDirectory handles POST /api/directory.
func (h *Handler) GrantDirectory(w http.ResponseWriter, _ *http.Request) {
	if err := h.eng.GrantDirectory(); err != nil {
		writeError(w, "grant directory", err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Status())
}

// RevokeDirectory handles DELETE /api/directory.
func (h *Handler) RevokeDirectory(w http.ResponseWriter, _ *http.Request) {
	if err := h.eng.RevokeDirectory(); err != nil {
		writeError(w, "revoke directory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/export.
func (h *Handler) Export(w http.ResponseWriter, _ *http.Request) {
	exp := h.eng.Export()
	w.Header().Set("Content-Disposition", `attachment; filename="project-export.json"`)
	writeJSON(w, http.StatusOK, exp)
}

// Import handles POST /api/import. The imported document replaces the
// project and is pushed like any other edit.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.eng.Import(&req.ExportDocument); err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

// Compare handles POST /api/compare.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Compare(&req.ExportDocument))
}
