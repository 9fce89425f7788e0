package storage

import (
	"fmt"
	"iter"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/starford/plansync/internal/apperr"
)

// Memory is an in-process Provider. The engine keeps the bytes of files
// uploaded while no directory is granted here until they can be written out.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memFile
	dirs  map[string]struct{}
	name  string
	now   func() time.Time
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty Memory provider.
func NewMemory(name string) *Memory {
	return &Memory{
		files: make(map[string]memFile),
		dirs:  make(map[string]struct{}),
		name:  name,
		now:   time.Now,
	}
}

func cleanRel(p string) (string, error) {
	c := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	c = strings.TrimPrefix(c, "/")
	if c == "" || c == "." {
		return "", fmt.Errorf("storage: empty path: %w", apperr.ErrInvalidInput)
	}
	return c, nil
}

// Name implements Provider.
func (m *Memory) Name() string { return m.name }

// Granted implements Provider; memory is always available.
func (m *Memory) Granted() bool { return true }

// WriteFile implements Provider.
func (m *Memory) WriteFile(p string, data []byte) error {
	c, err := cleanRel(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[c] = memFile{data: slices.Clone(data), modTime: m.now()}
	for d := path.Dir(c); d != "."; d = path.Dir(d) {
		m.dirs[d] = struct{}{}
	}
	return nil
}

// ReadFile implements Provider.
func (m *Memory) ReadFile(p string) ([]byte, error) {
	c, err := cleanRel(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[c]
	if !ok {
		return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
	}
	return slices.Clone(f.data), nil
}

// DeleteFile implements Provider.
func (m *Memory) DeleteFile(p string) error {
	c, err := cleanRel(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[c]; !ok {
		return fmt.Errorf("storage: delete %s: %w", p, apperr.ErrNotFound)
	}
	delete(m.files, c)
	return nil
}

// MakeDir implements Provider.
func (m *Memory) MakeDir(p string) error {
	c, err := cleanRel(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := c; d != "."; d = path.Dir(d) {
		m.dirs[d] = struct{}{}
	}
	return nil
}

func under(dir, p string) bool {
	return dir == "" || dir == "." || strings.HasPrefix(p, dir+"/")
}

// ListTree implements Provider. Entries are yielded in path order.
func (m *Memory) ListTree(dir string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		m.mu.RLock()
		keys := slices.Sorted(maps.Keys(m.files))
		snap := make([]Entry, 0, len(keys))
		for _, k := range keys {
			if under(dir, k) {
				f := m.files[k]
				snap = append(snap, Entry{Path: k, SizeBytes: int64(len(f.data)), LastModified: f.modTime})
			}
		}
		m.mu.RUnlock()
		for _, e := range snap {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// ListDirs implements Provider.
func (m *Memory) ListDirs(dir string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		m.mu.RLock()
		keys := slices.Sorted(maps.Keys(m.dirs))
		m.mu.RUnlock()
		for _, k := range keys {
			if !under(dir, k) {
				continue
			}
			if !yield(DirEntry{Path: k, Name: path.Base(k)}, nil) {
				return
			}
		}
	}
}

// Len returns the number of stored files.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
