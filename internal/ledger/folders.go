package ledger

import (
	"fmt"
	"path"
	"slices"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/models"
)

// Folders returns a copy of all folders.
func (l *Ledger) Folders() []models.FolderRecord {
	return l.Snapshot().Folders
}

// AddFolder appends f after checking its parent.
func (l *Ledger) AddFolder(f models.FolderRecord) (models.FolderRecord, error) {
	if f.ID == "" {
		f.ID = models.NewID()
	}
	if f.Name == "" {
		return f, fmt.Errorf("ledger: folder name: %w", apperr.ErrInvalidInput)
	}
	err := l.Update(Change{Kind: KindFolder, ID: f.ID}, func(d *models.ProjectDocument) error {
		if slices.ContainsFunc(d.Folders, func(x models.FolderRecord) bool { return x.ID == f.ID }) {
			return fmt.Errorf("ledger: folder %s: %w", f.ID, apperr.ErrAlreadyExists)
		}
		if err := checkParent(d.Folders, f.ID, f.ParentID); err != nil {
			return err
		}
		if f.LocalPath == "" {
			f.LocalPath = path.Join(folderPath(d.Folders, f.ParentID), f.Name)
		}
		d.Folders = append(d.Folders, f)
		return nil
	})
	return f, err
}

// UpdateFolder renames or moves a folder. The new parent must exist and
// must not be the folder itself or one of its descendants.
func (l *Ledger) UpdateFolder(f models.FolderRecord) error {
	return l.Update(Change{Kind: KindFolder, ID: f.ID}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Folders, func(x models.FolderRecord) bool { return x.ID == f.ID })
		if i < 0 {
			return notFound("folder", f.ID)
		}
		if err := checkParent(d.Folders, f.ID, f.ParentID); err != nil {
			return err
		}
		cur := &d.Folders[i]
		cur.Name = f.Name
		cur.ParentID = f.ParentID
		cur.Description = f.Description
		return nil
	})
}

// RemoveFolder deletes a folder. Its child folders and files move to the root.
func (l *Ledger) RemoveFolder(id models.ID) error {
	return l.Update(Change{Kind: KindFolder, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Folders, func(x models.FolderRecord) bool { return x.ID == id })
		if i < 0 {
			return notFound("folder", id)
		}
		d.Folders = slices.Delete(d.Folders, i, i+1)
		for j := range d.Folders {
			if d.Folders[j].ParentID != nil && *d.Folders[j].ParentID == id {
				d.Folders[j].ParentID = nil
			}
		}
		for j := range d.Files {
			if d.Files[j].FolderID != nil && *d.Files[j].FolderID == id {
				d.Files[j].FolderID = nil
			}
		}
		return nil
	})
}

// FolderDir returns the directory of folder id, relative to the granted
// root, over an already captured folder list. A nil id is the root.
func FolderDir(folders []models.FolderRecord, id *models.ID) string {
	return folderPath(folders, id)
}

// checkParent validates that parent exists and that walking up from it
// never reaches self.
func checkParent(folders []models.FolderRecord, self models.ID, parent *models.ID) error {
	if parent == nil {
		return nil
	}
	if *parent == self {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, ErrFolderCycle)
	}
	byID := folderIndex(folders)
	cur := parent
	for steps := 0; cur != nil; steps++ {
		if *cur == self || steps > len(folders) {
			return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, ErrFolderCycle)
		}
		f, ok := byID[*cur]
		if !ok {
			if cur == parent {
				return notFound("parent folder", *parent)
			}
			return nil
		}
		cur = f.ParentID
	}
	return nil
}

func folderIndex(folders []models.FolderRecord) map[models.ID]models.FolderRecord {
	m := make(map[models.ID]models.FolderRecord, len(folders))
	for _, f := range folders {
		m[f.ID] = f
	}
	return m
}

// folderPath prefers the recorded LocalPath and falls back to joining names.
func folderPath(folders []models.FolderRecord, id *models.ID) string {
	if id == nil {
		return ""
	}
	byID := folderIndex(folders)
	var parts []string
	cur := id
	for steps := 0; cur != nil && steps <= len(folders); steps++ {
		f, ok := byID[*cur]
		if !ok {
			break
		}
		if f.LocalPath != "" {
			parts = append(parts, f.LocalPath)
			break
		}
		parts = append(parts, f.Name)
		cur = f.ParentID
	}
	slices.Reverse(parts)
	return path.Join(parts...)
}
