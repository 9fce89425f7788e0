package ledger

import (
	"path"
	"slices"

	"github.com/starford/plansync/internal/models"
)

// Files returns a copy of all file records.
func (l *Ledger) Files() []models.FileRecord {
	return l.Snapshot().Files
}

// File returns the record with id.
func (l *Ledger) File(id models.ID) (models.FileRecord, error) {
	var (
		rec models.FileRecord
		ok  bool
	)
	l.View(func(d *models.ProjectDocument) {
		i := slices.IndexFunc(d.Files, func(x models.FileRecord) bool { return x.ID == id })
		if i >= 0 {
			rec, ok = d.Files[i], true
		}
	})
	if !ok {
		return rec, notFound("file", id)
	}
	return rec, nil
}

// AddFile appends rec. An empty LocalPath is derived from its folder and name.
func (l *Ledger) AddFile(rec models.FileRecord, source string) (models.FileRecord, error) {
	if rec.ID == "" {
		rec.ID = models.NewID()
	}
	err := l.Update(Change{Kind: KindFile, ID: rec.ID, Source: source}, func(d *models.ProjectDocument) error {
		if rec.FolderID != nil && !slices.ContainsFunc(d.Folders, func(x models.FolderRecord) bool { return x.ID == *rec.FolderID }) {
			return notFound("folder", *rec.FolderID)
		}
		if rec.LocalPath == "" {
			rec.LocalPath = path.Join(folderPath(d.Folders, rec.FolderID), rec.Name)
		}
		d.Files = append(d.Files, rec)
		return nil
	})
	return rec, err
}

// UpdateFile applies fn to the record with id.
func (l *Ledger) UpdateFile(id models.ID, source string, fn func(*models.FileRecord)) error {
	return l.Update(Change{Kind: KindFile, ID: id, Source: source}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Files, func(x models.FileRecord) bool { return x.ID == id })
		if i < 0 {
			return notFound("file", id)
		}
		fn(&d.Files[i])
		return nil
	})
}

// RemoveFile drops the record with id and returns it.
func (l *Ledger) RemoveFile(id models.ID) (models.FileRecord, error) {
	var removed models.FileRecord
	err := l.Update(Change{Kind: KindFile, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Files, func(x models.FileRecord) bool { return x.ID == id })
		if i < 0 {
			return notFound("file", id)
		}
		removed = d.Files[i]
		d.Files = slices.Delete(d.Files, i, i+1)
		return nil
	})
	return removed, err
}

// FilePath returns the path of rec relative to the granted directory.
func FilePath(rec models.FileRecord, folders []models.FolderRecord) string {
	if rec.LocalPath != "" {
		return rec.LocalPath
	}
	return path.Join(folderPath(folders, rec.FolderID), rec.Name)
}
