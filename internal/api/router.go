package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/plansync/internal/reconcile"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
// manualRPS limits the manual sync endpoints; zero or less disables the limit.
func NewRouter(eng *reconcile.Engine, sseHandler http.Handler, manualRPS float64, logger *slog.Logger) chi.Router {
	h := NewHandler(eng, logger)

	var manual *rate.Limiter
	if manualRPS > 0 {
		manual = rate.NewLimiter(rate.Limit(manualRPS), 1)
	}

	r := chi.NewRouter()

	// Project header.
	r.Get("/project", h.GetProject)
	r.Put("/project/info", h.UpdateProjectInfo)

	// Tasks.
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CreateTask)
	r.Put("/tasks/{id}", h.UpdateTask)
	r.Delete("/tasks/{id}", h.DeleteTask)

	// Timeline.
	r.Get("/timeline", h.ListTimeline)
	r.Post("/timeline", h.CreateTimelineEntry)
	r.Put("/timeline/{id}", h.UpdateTimelineEntry)
	r.Delete("/timeline/{id}", h.DeleteTimelineEntry)

	// Research outputs.
	r.Get("/results", h.ListResults)
	r.Post("/results", h.CreateResult)
	r.Delete("/results/{id}", h.DeleteResult)
	r.Get("/roadmap", h.ListRoadmap)
	r.Post("/roadmap", h.CreateRoadmapNode)
	r.Delete("/roadmap/{id}", h.DeleteRoadmapNode)
	r.Get("/mindmaps", h.ListMindmaps)
	r.Put("/mindmaps", h.PutMindmap)
	r.Delete("/mindmaps/{id}", h.DeleteMindmap)

	// Folders.
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Put("/folders/{id}", h.UpdateFolder)
	r.Delete("/folders/{id}", h.DeleteFolder)

	// Files.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.UploadFile)
	r.Get("/files/{id}/content", h.FileContent)
	r.Delete("/files/{id}", h.DeleteFile)

	// Manual sync, throttled.
	r.Group(func(r chi.Router) {
		r.Use(Throttle(manual))
		r.Post("/sync/pull", h.Pull)
		r.Post("/sync/push", h.Push)
		r.Post("/sync/discover", h.Discover)
	})
	r.Get("/sync/status", h.Status)

	// Credential and directory grant.
	r.Put("/credential", h.SetCredential)
	r.Delete("/credential", h.ClearCredential)
	r.Post("/directory", h.GrantDirectory)
	r.Delete("/directory", h.RevokeDirectory)

	// Export, import, compare.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
	r.Post("/compare", h.Compare)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
