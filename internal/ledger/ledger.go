// Package ledger holds the canonical in-memory project document.
//
// Every read returns a deep copy and every mutation goes through the
// Ledger's lock, so callers never share the live document. Registered
// listeners are invoked after a successful mutation, outside the lock.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/models"
)

// ErrFolderCycle is returned when a folder parent assignment would make a
// folder its own ancestor.
var ErrFolderCycle = errors.New("ledger: folder would become its own ancestor")

// Kind names the collection a Change touched.
type Kind string

// Change kinds.
const (
	KindProject  Kind = "project"
	KindTask     Kind = "task"
	KindTimeline Kind = "timeline"
	KindFile     Kind = "file"
	KindFolder   Kind = "folder"
	KindResult   Kind = "result"
	KindRoadmap  Kind = "roadmap"
	KindMindmap  Kind = "mindmap"
	KindReplace  Kind = "replace"
)

// Change describes one applied mutation.
type Change struct {
	Kind Kind
	ID   models.ID
	// Source is set by system-originated mutations (discovery, pull) so
	// listeners can tell them apart from user edits.
	Source string
}

// Listener receives applied changes.
type Listener func(Change)

// Ledger owns a ProjectDocument.
type Ledger struct {
	mu        sync.RWMutex
	doc       *models.ProjectDocument
	listeners map[int]Listener
	nextID    int
	version   uint64
}

// New returns a ledger holding a copy of doc. A nil doc starts empty.
func New(doc *models.ProjectDocument) *Ledger {
	if doc == nil {
		doc = &models.ProjectDocument{}
	}
	d := doc.Clone()
	d.Normalize()
	return &Ledger{doc: d, listeners: make(map[int]Listener)}
}

// Subscribe registers fn and returns a function that removes it.
func (l *Ledger) Subscribe(fn Listener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// Snapshot returns a deep copy of the current document.
func (l *Ledger) Snapshot() *models.ProjectDocument {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.doc.Clone()
}

// Version counts applied mutations. It only grows.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Replace swaps the whole document, as a remote pull does.
func (l *Ledger) Replace(doc *models.ProjectDocument, source string) {
	d := doc.Clone()
	d.Normalize()
	l.mu.Lock()
	l.doc = d
	l.version++
	l.mu.Unlock()
	l.emit(Change{Kind: KindReplace, Source: source})
}

// ReplaceIf swaps the document only if no mutation was applied since
// Version returned version. It reports whether the swap happened.
func (l *Ledger) ReplaceIf(doc *models.ProjectDocument, source string, version uint64) bool {
	d := doc.Clone()
	d.Normalize()
	l.mu.Lock()
	if l.version != version {
		l.mu.Unlock()
		return false
	}
	l.doc = d
	l.version++
	l.mu.Unlock()
	l.emit(Change{Kind: KindReplace, Source: source})
	return true
}

// Update runs fn against the live document under the write lock. If fn
// returns an error the document is left as it was and no listener fires.
func (l *Ledger) Update(c Change, fn func(doc *models.ProjectDocument) error) error {
	l.mu.Lock()
	work := l.doc.Clone()
	if err := fn(work); err != nil {
		l.mu.Unlock()
		return err
	}
	l.doc = work
	l.version++
	l.mu.Unlock()
	l.emit(c)
	return nil
}

// View runs fn against the live document under the read lock. fn must not
// retain doc or anything reachable from it.
func (l *Ledger) View(fn func(doc *models.ProjectDocument)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.doc)
}

func (l *Ledger) emit(c Change) {
	l.mu.RLock()
	fns := make([]Listener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// ProjectInfo is the editable header of the document.
type ProjectInfo struct {
	ProjectName string `json:"projectName"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Description string `json:"description"`
}

// SetProjectInfo replaces the document header.
func (l *Ledger) SetProjectInfo(info ProjectInfo) error {
	return l.Update(Change{Kind: KindProject}, func(d *models.ProjectDocument) error {
		d.ProjectName = info.ProjectName
		d.StartDate = info.StartDate
		d.EndDate = info.EndDate
		d.Description = info.Description
		return nil
	})
}

func notFound(what string, id models.ID) error {
	return fmt.Errorf("ledger: %s %s: %w", what, id, apperr.ErrNotFound)
}
