package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/reconcile"
)

// Handler holds API route handlers.
type Handler struct {
	eng    *reconcile.Engine
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(eng *reconcile.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{eng: eng, ledger: eng.Ledger(), logger: logger}
}

func idParam(r *http.Request) models.ID {
	return models.ID(chi.URLParam(r, "id"))
}

// GetProject handles GET /api/project.
//
//	@Summary		Get the full project document
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	models.ProjectDocument
//	@Router			/project [get]
func (h *Handler) GetProject(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

// UpdateProjectInfo handles PUT /api/project/info.
//
//	@Summary		Edit the project header
//	@Tags			project
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProjectInfoRequest	true	"Header fields"
//	@Success		200		{object}	models.ProjectDocument
//	@Failure		400		{object}	errResponse
//	@Router			/project/info [put]
func (h *Handler) UpdateProjectInfo(w http.ResponseWriter, r *http.Request) {
	var req ProjectInfoRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.ledger.SetProjectInfo(req.info()); err != nil {
		writeError(w, "update project info", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

// ListTasks handles GET /api/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": h.ledger.Tasks()})
}

// CreateTask handles POST /api/tasks.
//
//	@Summary		Create a task
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TaskRequest	true	"Task to create"
//	@Success		201		{object}	models.Task
//	@Failure		400		{object}	errResponse
//	@Router			/tasks [post]
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := h.ledger.AddTask(req.task(""))
	if err != nil {
		writeError(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask handles PUT /api/tasks/{id}.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if !decode(w, r, &req) {
		return
	}
	task := req.task(idParam(r))
	if err := h.ledger.UpdateTask(task); err != nil {
		writeError(w, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/tasks/{id}. Timeline entries pointing at
// the task are unlinked, not removed.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveTask(idParam(r)); err != nil {
		writeError(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTimeline handles GET /api/timeline.
func (h *Handler) ListTimeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"timeline": h.ledger.Timeline()})
}

// CreateTimelineEntry handles POST /api/timeline.
func (h *Handler) CreateTimelineEntry(w http.ResponseWriter, r *http.Request) {
	var req TimelineRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.ledger.AddTimelineEntry(req.entry(""))
	if err != nil {
		writeError(w, "create timeline entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateTimelineEntry handles PUT /api/timeline/{id}.
func (h *Handler) UpdateTimelineEntry(w http.ResponseWriter, r *http.Request) {
	var req TimelineRequest
	if !decode(w, r, &req) {
		return
	}
	e := req.entry(idParam(r))
	if err := h.ledger.UpdateTimelineEntry(e); err != nil {
		writeError(w, "update timeline entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteTimelineEntry handles DELETE /api/timeline/{id}.
func (h *Handler) DeleteTimelineEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveTimelineEntry(idParam(r)); err != nil {
		writeError(w, "delete timeline entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFolders handles GET /api/folders.
func (h *Handler) ListFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"folders": h.ledger.Folders()})
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Description	Creates the folder record and, when the directory is granted, the directory on disk.
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FolderRequest	true	"Folder"
//	@Success		201		{object}	models.FolderRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.eng.CreateFolder(r.Context(), models.FolderRecord{
		Name:        req.Name,
		ParentID:    req.ParentID,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFolder handles PUT /api/folders/{id}.
func (h *Handler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if !decode(w, r, &req) {
		return
	}
	f := models.FolderRecord{ID: idParam(r), Name: req.Name, ParentID: req.ParentID, Description: req.Description}
	if err := h.ledger.UpdateFolder(f); err != nil {
		writeError(w, "update folder", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFolder handles DELETE /api/folders/{id}. Children move to the root.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.RemoveFolder(r.Context(), idParam(r)); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
