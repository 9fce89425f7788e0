package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/models"
)

func validFileName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// StoreFile records a new file in folderID and stores its bytes: on disk
// when the directory is granted, otherwise pending in memory until a deep
// pass can write them out. Storing to a path that already has a record
// replaces that record's bytes.
func (e *Engine) StoreFile(ctx context.Context, folderID *models.ID, name string, data []byte) (models.FileRecord, error) {
	if !validFileName(name) {
		return models.FileRecord{}, fmt.Errorf("%w: %w: %q", apperr.ErrInvalidInput, ErrInvalidFileName, name)
	}
	if err := ctx.Err(); err != nil {
		return models.FileRecord{}, err
	}
	doc := e.ledger.Snapshot()
	if folderID != nil && !slices.ContainsFunc(doc.Folders, func(f models.FolderRecord) bool { return f.ID == *folderID }) {
		return models.FileRecord{}, fmt.Errorf("reconcile: store file: folder %s: %w", *folderID, apperr.ErrNotFound)
	}
	p := path.Join(ledger.FolderDir(doc.Folders, folderID), name)

	onDisk, err := e.files.write(p, data)
	if err != nil {
		return models.FileRecord{}, err
	}
	state := models.SyncUnsynced
	if onDisk {
		state = models.SyncSynced
	}
	size := int64(len(data))
	today := e.now().UTC().Format(models.DateLayout)

	for _, rec := range doc.Files {
		if ledger.FilePath(rec, doc.Folders) != p {
			continue
		}
		err := e.ledger.UpdateFile(rec.ID, "", func(r *models.FileRecord) {
			r.SizeBytes = size
			r.Size = models.FormatSize(size)
			r.UploadDate = today
			r.SyncState = state
			r.LastModified = e.now().UnixMilli()
		})
		if err != nil {
			return models.FileRecord{}, err
		}
		return e.ledger.File(rec.ID)
	}

	rec := models.NewFileRecord(name, size, folderID, today)
	rec.SyncState = state
	rec.LocalPath = p
	rec.LastModified = e.now().UnixMilli()
	rec, err = e.ledger.AddFile(rec, "")
	if err != nil {
		_ = e.files.remove(p, onDisk)
		return models.FileRecord{}, err
	}
	e.logger.Info("reconcile: file stored", slog.String("path", p), slog.Bool("on_disk", onDisk))
	return rec, nil
}

// OpenFile returns a file record and its bytes.
func (e *Engine) OpenFile(ctx context.Context, id models.ID) (models.FileRecord, []byte, error) {
	rec, err := e.ledger.File(id)
	if err != nil {
		return rec, nil, err
	}
	if err := ctx.Err(); err != nil {
		return rec, nil, err
	}
	data, err := e.files.read(ledger.FilePath(rec, e.ledger.Folders()))
	if err != nil {
		e.permissionLost(err)
		return rec, nil, fmt.Errorf("reconcile: open %s: %w", id, err)
	}
	return rec, data, nil
}

// RemoveFile deletes the file's bytes from whichever store holds them, then
// drops the record. If the bytes cannot be deleted the record is kept.
func (e *Engine) RemoveFile(ctx context.Context, id models.ID) error {
	rec, err := e.ledger.File(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p := ledger.FilePath(rec, e.ledger.Folders())
	onDisk := rec.SyncState != models.SyncUnsynced || e.localUsable()
	if err := e.files.remove(p, onDisk); err != nil {
		e.permissionLost(err)
		return fmt.Errorf("reconcile: remove file %s: %w", id, err)
	}
	if _, err := e.ledger.RemoveFile(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	e.logger.Info("reconcile: file removed", slog.String("path", p))
	return nil
}

// CreateFolder adds a folder and, when the directory is granted, creates it
// on disk.
func (e *Engine) CreateFolder(ctx context.Context, f models.FolderRecord) (models.FolderRecord, error) {
	if f.CreateDate == "" {
		f.CreateDate = e.now().UTC().Format(models.DateLayout)
	}
	if !validFileName(f.Name) {
		return f, fmt.Errorf("reconcile: folder name %q: %w", f.Name, apperr.ErrInvalidInput)
	}
	f, err := e.ledger.AddFolder(f)
	if err != nil {
		return f, err
	}
	if e.localUsable() && ctx.Err() == nil {
		if err := e.local.MakeDir(f.LocalPath); err != nil && !e.permissionLost(err) {
			e.logger.Warn("reconcile: create folder on disk failed",
				slog.String("path", f.LocalPath), slog.String("error", err.Error()))
		}
	}
	return f, nil
}

// RemoveFolder drops a folder record; its children move to the root. Nothing
// is deleted on disk, and discovery never removes folders on its own.
func (e *Engine) RemoveFolder(_ context.Context, id models.ID) error {
	return e.ledger.RemoveFolder(id)
}
