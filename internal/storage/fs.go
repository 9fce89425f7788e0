package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/starford/plansync/internal/apperr"
)

const tmpPrefix = ".plansync-tmp-"

// FS implements Provider backed by a directory on the local file system.
// The handle starts granted; Revoke simulates the grant being withdrawn.
type FS struct {
	root    string // absolute path to the granted directory
	granted atomic.Bool
	logger  *slog.Logger
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, logger *slog.Logger) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &FS{root: abs, logger: logger}
	f.granted.Store(true)
	return f, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// Name returns the base name of the root directory.
func (f *FS) Name() string { return filepath.Base(f.root) }

// Grant re-enables the handle. It fails if the root is not reachable.
func (f *FS) Grant() error {
	info, err := os.Stat(f.root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("storage: grant %s: %w", f.root, ErrPermissionLost)
	}
	f.granted.Store(true)
	return nil
}

// Revoke withdraws the grant; every later operation fails with ErrPermissionLost.
func (f *FS) Revoke() { f.granted.Store(false) }

// Granted reports whether the handle is granted and the root still exists.
func (f *FS) Granted() bool { return f.check() == nil }

func (f *FS) check() error {
	if !f.granted.Load() {
		return ErrPermissionLost
	}
	info, err := os.Stat(f.root)
	if err != nil || !info.IsDir() {
		return ErrPermissionLost
	}
	return nil
}

// classify maps permission failures onto ErrPermissionLost.
func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return ErrPermissionLost
	}
	return err
}

// safePath resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if err := f.check(); err != nil {
		return "", err
	}
	if rel == "" || rel == "." {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidInput)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s: %w", rel, apperr.ErrInvalidInput)
	}
	return abs, nil
}

// ReadFile returns the raw bytes of a file.
func (f *FS) ReadFile(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, classify(err))
	}
	return data, nil
}

// WriteFile atomically writes content: tmp file → fsync → rename.
func (f *FS) WriteFile(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", classify(err))
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", classify(err))
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", classify(err))
	}
	success = true
	return nil
}

// DeleteFile removes a file.
func (f *FS) DeleteFile(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: delete root: %w", apperr.ErrInvalidInput)
	}
	err = os.Remove(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", p, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, classify(err))
	}
	return nil
}

// MakeDir creates a directory and its parents.
func (f *FS) MakeDir(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", p, classify(err))
	}
	return nil
}

// ListTree enumerates files below dir. Symlinks and temp files are skipped.
// Directories deeper than MaxDepth are skipped with a warning.
func (f *FS) ListTree(dir string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		f.walk(dir, func(rel string, d fs.DirEntry) bool {
			if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
				return true
			}
			info, err := d.Info()
			if err != nil {
				return yield(Entry{}, fmt.Errorf("storage: stat %s: %w", rel, classify(err)))
			}
			return yield(Entry{Path: rel, SizeBytes: info.Size(), LastModified: info.ModTime()}, nil)
		}, func(err error) bool {
			return yield(Entry{}, err)
		})
	}
}

// ListDirs enumerates directories below dir.
func (f *FS) ListDirs(dir string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		f.walk(dir, func(rel string, d fs.DirEntry) bool {
			if !d.IsDir() {
				return true
			}
			return yield(DirEntry{Path: rel, Name: d.Name()}, nil)
		}, func(err error) bool {
			return yield(DirEntry{}, err)
		})
	}
}

// walk visits every entry below dir depth-first. visit and fail return
// false to stop the walk.
func (f *FS) walk(dir string, visit func(rel string, d fs.DirEntry) bool, fail func(error) bool) {
	base, err := f.safePath(dir)
	if err != nil {
		fail(err)
		return
	}
	var descend func(abs, rel string, depth int) bool
	descend = func(abs, rel string, depth int) bool {
		entries, err := os.ReadDir(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && depth == 0 {
				return true
			}
			// An unreadable subdirectory is skipped. Only a failing root
			// means the grant itself is gone.
			if depth > 0 && errors.Is(err, fs.ErrPermission) && f.check() == nil {
				f.logger.Warn("storage: unreadable directory, skipping", slog.String("path", rel))
				return true
			}
			return fail(fmt.Errorf("storage: list %s: %w", rel, classify(err)))
		}
		for _, d := range entries {
			if d.Type()&fs.ModeSymlink != 0 {
				continue
			}
			childRel := path.Join(rel, d.Name())
			if !visit(childRel, d) {
				return false
			}
			if !d.IsDir() {
				continue
			}
			if depth+1 >= MaxDepth {
				f.logger.Warn("storage: max depth reached, skipping", slog.String("path", childRel))
				continue
			}
			if !descend(filepath.Join(abs, d.Name()), childRel, depth+1) {
				return false
			}
		}
		return true
	}
	descend(base, filepath.ToSlash(dir), 0)
}
