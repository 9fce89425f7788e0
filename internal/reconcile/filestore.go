package reconcile

import (
	"errors"
	"fmt"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/storage"
)

// fileStore puts the granted directory in front of the in-memory pending
// store: bytes go to disk when the grant is usable and wait in memory
// otherwise.
type fileStore struct {
	disk    Directory
	pending *storage.Memory
	// diskFailed is told about disk errors that were absorbed by falling
	// back to the pending store.
	diskFailed func(path string, err error)
}

func (s fileStore) diskUsable() bool {
	return s.disk != nil && s.disk.Granted()
}

// write stores data at p and reports whether it reached disk. A disk
// failure falls back to the pending store.
func (s fileStore) write(p string, data []byte) (onDisk bool, err error) {
	if s.diskUsable() {
		err := s.disk.WriteFile(p, data)
		if err == nil {
			_ = s.pending.DeleteFile(p)
			return true, nil
		}
		if s.diskFailed != nil {
			s.diskFailed(p, err)
		}
	}
	if err := s.pending.WriteFile(p, data); err != nil {
		return false, fmt.Errorf("reconcile: keep pending %s: %w", p, err)
	}
	return false, nil
}

// read prefers pending bytes, which are newer than anything on disk.
func (s fileStore) read(p string) ([]byte, error) {
	if data, err := s.pending.ReadFile(p); err == nil {
		return data, nil
	}
	if s.disk == nil {
		return nil, fmt.Errorf("reconcile: read %s: %w", p, apperr.ErrNotFound)
	}
	return s.disk.ReadFile(p)
}

// remove deletes p from whichever store holds it. Absence is not an error.
func (s fileStore) remove(p string, onDisk bool) error {
	_ = s.pending.DeleteFile(p)
	if !onDisk || s.disk == nil {
		return nil
	}
	if err := s.disk.DeleteFile(p); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

// flush moves pending bytes for p to disk.
func (s fileStore) flush(p string) (bool, error) {
	data, err := s.pending.ReadFile(p)
	if err != nil {
		return false, nil
	}
	if err := s.disk.WriteFile(p, data); err != nil {
		return false, err
	}
	_ = s.pending.DeleteFile(p)
	return true, nil
}
