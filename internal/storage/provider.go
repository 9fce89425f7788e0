// Package storage defines the granted-directory abstraction the sync engine
// reads and writes project files through.
package storage

import (
	"errors"
	"iter"
	"time"
)

// ErrPermissionLost is returned by every operation once the directory grant
// has been revoked or the root has become unreachable. Callers surface it as
// "reconnect required" rather than as a generic failure.
var ErrPermissionLost = errors.New("storage: directory permission lost")

// MaxDepth bounds tree enumeration.
const MaxDepth = 32

// Entry is one file found by ListTree.
type Entry struct {
	Path         string // slash-separated, relative to the root
	SizeBytes    int64
	LastModified time.Time
}

// DirEntry is one directory found by ListDirs.
type DirEntry struct {
	Path string
	Name string
}

// Provider is the interface for granted-directory file operations. Paths are
// slash-separated and relative to the provider root.
type Provider interface {
	// WriteFile creates missing parent directories, then creates or
	// overwrites the file.
	WriteFile(path string, data []byte) error
	// ReadFile returns apperr.ErrNotFound when the file is absent.
	ReadFile(path string) ([]byte, error)
	// DeleteFile returns apperr.ErrNotFound when the file is absent.
	DeleteFile(path string) error
	// MakeDir creates a directory and any missing parents.
	MakeDir(path string) error
	// ListTree lazily enumerates every file below dir, depth-first.
	ListTree(dir string) iter.Seq2[Entry, error]
	// ListDirs lazily enumerates every directory below dir, depth-first.
	ListDirs(dir string) iter.Seq2[DirEntry, error]
	// Granted reports whether the handle is currently usable.
	Granted() bool
	// Name is the display name of the root directory.
	Name() string
}
