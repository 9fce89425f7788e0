package localstorage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/models"
)

// Well-known keys.
const (
	KeyDocument  = "projectProgressData"
	KeyToken     = "githubToken"
	KeyDirectory = "localSyncDirectory"
)

// DirectoryState records whether a local directory was granted and its name.
type DirectoryState struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
}

// SaveDocument persists the project document.
func (db *DB) SaveDocument(doc *models.ProjectDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("localstorage: encode document: %w", err)
	}
	return db.Set(KeyDocument, data)
}

// LoadDocument returns the stored document, or apperr.ErrNotFound.
func (db *DB) LoadDocument() (*models.ProjectDocument, error) {
	data, err := db.Get(KeyDocument)
	if err != nil {
		return nil, err
	}
	doc, err := models.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("localstorage: decode document: %w", err)
	}
	return doc, nil
}

// Credential returns the stored remote token, or "" when none is stored.
func (db *DB) Credential() (string, error) {
	v, err := db.Get(KeyToken)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	return string(v), err
}

// SetCredential stores the remote token.
func (db *DB) SetCredential(token string) error {
	return db.Set(KeyToken, []byte(token))
}

// ClearCredential forgets the remote token.
func (db *DB) ClearCredential() error {
	return db.Delete(KeyToken)
}

// DirectoryState returns the persisted directory grant state.
func (db *DB) DirectoryState() (DirectoryState, error) {
	var st DirectoryState
	v, err := db.Get(KeyDirectory)
	if errors.Is(err, apperr.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(v, &st); err != nil {
		return st, fmt.Errorf("localstorage: decode directory state: %w", err)
	}
	return st, nil
}

// SetDirectoryState persists the directory grant state.
func (db *DB) SetDirectoryState(st DirectoryState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return db.Set(KeyDirectory, data)
}
