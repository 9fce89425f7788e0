package api

import (
	"net/http"
	"time"

	"github.com/starford/plansync/internal/models"
)

// ListResults handles GET /api/results.
func (h *Handler) ListResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"results": h.ledger.Results()})
}

// CreateResult handles POST /api/results.
//
//	@Summary		Record a research result
//	@Tags			results
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ResultRequest	true	"Result to record"
//	@Success		201		{object}	models.Result
//	@Failure		400		{object}	errResponse
//	@Router			/results [post]
func (h *Handler) CreateResult(w http.ResponseWriter, r *http.Request) {
	var req ResultRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.ledger.AddResult(req.result())
	if err != nil {
		writeError(w, "create result", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// DeleteResult handles DELETE /api/results/{id}.
func (h *Handler) DeleteResult(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveResult(idParam(r)); err != nil {
		writeError(w, "delete result", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRoadmap handles GET /api/roadmap.
func (h *Handler) ListRoadmap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"roadmap": h.ledger.Roadmap()})
}

// CreateRoadmapNode handles POST /api/roadmap. A parentId must name an
// existing node.
func (h *Handler) CreateRoadmapNode(w http.ResponseWriter, r *http.Request) {
	var req RoadmapNodeRequest
	if !decode(w, r, &req) {
		return
	}
	node, err := h.ledger.AddRoadmapNode(req.node())
	if err != nil {
		writeError(w, "create roadmap node", err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// DeleteRoadmapNode handles DELETE /api/roadmap/{id}. Children move up to
// the removed node's parent.
func (h *Handler) DeleteRoadmapNode(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveRoadmapNode(idParam(r)); err != nil {
		writeError(w, "delete roadmap node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMindmaps handles GET /api/mindmaps.
func (h *Handler) ListMindmaps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"mindmaps": h.ledger.Mindmaps()})
}

// PutMindmap handles PUT /api/mindmaps.
//
//	@Summary		Store a mindmap, replacing one built from the same source text
//	@Tags			mindmaps
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MindmapRequest	true	"Mindmap"
//	@Success		200		{object}	models.Mindmap
//	@Failure		400		{object}	errResponse
//	@Router			/mindmaps [put]
func (h *Handler) PutMindmap(w http.ResponseWriter, r *http.Request) {
	var req MindmapRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.ledger.UpsertMindmap(req.mindmap(time.Now().UTC().Format(models.TimeLayout)))
	if err != nil {
		writeError(w, "store mindmap", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMindmap handles DELETE /api/mindmaps/{id}.
func (h *Handler) DeleteMindmap(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveMindmap(idParam(r)); err != nil {
		writeError(w, "delete mindmap", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
