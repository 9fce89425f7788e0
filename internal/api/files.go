package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/starford/plansync/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

// ListFiles handles GET /api/files. An optional folderId query narrows the
// list to one folder; "root" selects files outside any folder.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files := h.ledger.Files()
	if q := r.URL.Query().Get("folderId"); q != "" {
		out := files[:0]
		for _, f := range files {
			switch {
			case q == "root" && f.FolderID == nil:
				out = append(out, f)
			case f.FolderID != nil && string(*f.FolderID) == q:
				out = append(out, f)
			}
		}
		files = out
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// UploadFile handles POST /api/files (multipart/form-data, field "file",
// optional "folderId").
//
//	@Summary		Upload a project file
//	@Description	Writes to the granted directory, or keeps the bytes pending until the next deep pass.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		201	{object}	FileUploadResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	var folderID *models.ID
	if v := r.FormValue("folderId"); v != "" {
		folderID = models.IDPtr(models.ID(v))
	}

	rec, err := h.eng.StoreFile(r.Context(), folderID, header.Filename, data)
	if err != nil {
		writeError(w, "upload file", err)
		return
	}
	writeJSON(w, http.StatusCreated, FileUploadResponse{File: rec, OnDisk: rec.SyncState == models.SyncSynced})
}

// FileContent handles GET /api/files/{id}/content.
func (h *Handler) FileContent(w http.ResponseWriter, r *http.Request) {
	rec, data, err := h.eng.OpenFile(r.Context(), idParam(r))
	if err != nil {
		writeError(w, "read file", err)
		return
	}
	ctype := mime.TypeByExtension(path.Ext(rec.Name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.Name}))
	var mod time.Time
	if rec.LastModified > 0 {
		mod = time.UnixMilli(rec.LastModified)
	}
	http.ServeContent(w, r, rec.Name, mod, bytes.NewReader(data))
}

// DeleteFile handles DELETE /api/files/{id}.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.RemoveFile(r.Context(), idParam(r)); err != nil {
		writeError(w, "delete file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
