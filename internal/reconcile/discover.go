package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/storage"
)

// Mode selects how thorough a discovery pass is.
type Mode string

// Discovery modes.
const (
	// ModeLight reconciles files only.
	ModeLight Mode = "light"
	// ModeDeep also adopts folders, revives errored files and flushes
	// pending bytes to disk.
	ModeDeep Mode = "deep"
)

// ParseMode parses a mode name; empty means light.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeLight:
		return ModeLight, nil
	case ModeDeep:
		return ModeDeep, nil
	}
	return "", fmt.Errorf("reconcile: unknown discovery mode %q", s)
}

// DiscoveryReport counts what a pass changed.
type DiscoveryReport struct {
	Mode              Mode `json:"mode"`
	Adopted           int  `json:"adopted"`
	Missing           int  `json:"missing"`
	Resized           int  `json:"resized"`
	Revived           int  `json:"revived"`
	FoldersAdopted    int  `json:"foldersAdopted"`
	Linked            int  `json:"linked"`
	Flushed           int  `json:"flushed"`
	ReconnectRequired bool `json:"reconnectRequired"`
}

// Changed reports whether the pass modified the ledger.
func (r DiscoveryReport) Changed() bool {
	return r.Adopted+r.Missing+r.Resized+r.Revived+r.FoldersAdopted+r.Linked+r.Flushed > 0
}

func (r DiscoveryReport) counts() map[string]int {
	return map[string]int{
		"adopted": r.Adopted, "missing": r.Missing, "resized": r.Resized,
		"revived": r.Revived, "folders": r.FoldersAdopted, "linked": r.Linked, "flushed": r.Flushed,
	}
}

// Discover reconciles the ledger with the granted directory. Passes are
// exclusive: a caller arriving while a pass of the same mode runs shares
// its result, and passes of different modes run one after the other.
func (e *Engine) Discover(ctx context.Context, mode Mode) (DiscoveryReport, error) {
	v, err, _ := e.sf.Do("local:"+string(mode), func() (any, error) {
		e.localMu.Lock()
		defer e.localMu.Unlock()
		return e.discover(ctx, mode)
	})
	rep, _ := v.(DiscoveryReport)
	return rep, err
}

// diskPlan is the diff between the ledger and the directory.
type diskPlan struct {
	folders []models.FolderRecord
	adopt   []models.FileRecord
	missing []models.ID
	resize  map[models.ID]storage.Entry
	revive  map[models.ID]storage.Entry
	flush   []models.FileRecord
}

func (e *Engine) discover(ctx context.Context, mode Mode) (DiscoveryReport, error) {
	rep := DiscoveryReport{Mode: mode}
	if e.local == nil {
		return rep, ErrNoDirectory
	}
	defer e.setPhase(PhaseIdle)

	// Scanning.
	e.setPhase(PhaseScanning)
	entries, dirs, err := e.scan(ctx, mode)
	if err != nil {
		if e.permissionLost(err) {
			rep.ReconnectRequired = true
			e.metrics.RecordDiscovery(string(mode), "permission-lost", nil)
			return rep, fmt.Errorf("reconcile: discover: %w", err)
		}
		e.metrics.RecordDiscovery(string(mode), "error", nil)
		return rep, fmt.Errorf("reconcile: discover: %w", err)
	}

	// Diffing.
	e.setPhase(PhaseDiffing)
	plan := e.diff(e.ledger.Snapshot(), mode, entries, dirs)

	// Applying: disk writes first, then one ledger update.
	e.setPhase(PhaseApplying)
	flushed := make(map[models.ID]storage.Entry)
	for _, rec := range plan.flush {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		p := ledger.FilePath(rec, nil)
		ok, err := e.files.flush(p)
		if err != nil {
			if e.permissionLost(err) {
				rep.ReconnectRequired = true
				break
			}
			e.logger.Warn("reconcile: flush pending file failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if ok {
			flushed[rec.ID] = storage.Entry{Path: p, SizeBytes: rec.SizeBytes, LastModified: e.now()}
		}
	}

	err = e.ledger.Update(ledger.Change{Kind: ledger.KindFile, Source: SourceDiscovery}, func(d *models.ProjectDocument) error {
		e.apply(d, plan, flushed, &rep)
		if !rep.Changed() {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return rep, err
	}
	if !rep.ReconnectRequired {
		e.clearReconnect()
	}

	e.metrics.RecordDiscovery(string(mode), "ok", rep.counts())
	if rep.Changed() {
		e.logger.Info("reconcile: discovery applied",
			slog.String("mode", string(mode)),
			slog.Int("adopted", rep.Adopted),
			slog.Int("missing", rep.Missing),
			slog.Int("resized", rep.Resized),
			slog.Int("revived", rep.Revived),
			slog.Int("folders", rep.FoldersAdopted),
			slog.Int("flushed", rep.Flushed))
		e.notifier.Notify(EventDiscovered, rep)
		e.NotifyChanged()
	}
	return rep, nil
}

// errNoChange aborts a ledger update that would change nothing.
var errNoChange = errors.New("reconcile: no change")

func (e *Engine) scan(ctx context.Context, mode Mode) (map[string]storage.Entry, []storage.DirEntry, error) {
	entries := make(map[string]storage.Entry)
	for ent, err := range e.local.ListTree("") {
		if err != nil {
			return nil, nil, err
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if hidden(ent.Path) {
			continue
		}
		entries[ent.Path] = ent
	}
	var dirs []storage.DirEntry
	if mode == ModeDeep {
		for d, err := range e.local.ListDirs("") {
			if err != nil {
				return nil, nil, err
			}
			if hidden(d.Path) {
				continue
			}
			dirs = append(dirs, d)
		}
		// Parents before children.
		slices.SortFunc(dirs, func(a, b storage.DirEntry) int {
			if c := strings.Count(a.Path, "/") - strings.Count(b.Path, "/"); c != 0 {
				return c
			}
			return strings.Compare(a.Path, b.Path)
		})
	}
	return entries, dirs, nil
}

// hidden skips dot files and dot directories.
func hidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (e *Engine) diff(doc *models.ProjectDocument, mode Mode, entries map[string]storage.Entry, dirs []storage.DirEntry) diskPlan {
	plan := diskPlan{
		resize: make(map[models.ID]storage.Entry),
		revive: make(map[models.ID]storage.Entry),
	}

	// Directory path -> folder id, for existing folders.
	folderByPath := make(map[string]models.ID, len(doc.Folders))
	for _, f := range doc.Folders {
		folderByPath[ledger.FolderDir(doc.Folders, &f.ID)] = f.ID
	}

	today := e.now().UTC().Format(models.DateLayout)
	for _, d := range dirs {
		if _, ok := folderByPath[d.Path]; ok {
			continue
		}
		f := models.FolderRecord{
			ID:         models.NewID(),
			Name:       d.Name,
			CreateDate: today,
			LocalPath:  d.Path,
		}
		if parent := path.Dir(d.Path); parent != "." {
			if pid, ok := folderByPath[parent]; ok {
				f.ParentID = models.IDPtr(pid)
			}
		}
		folderByPath[d.Path] = f.ID
		plan.folders = append(plan.folders, f)
	}

	known := make(map[string]bool, len(doc.Files))
	for _, rec := range doc.Files {
		p := ledger.FilePath(rec, doc.Folders)
		known[p] = true
		ent, onDisk := entries[p]
		switch rec.SyncState {
		case models.SyncSynced:
			if !onDisk {
				plan.missing = append(plan.missing, rec.ID)
			} else if !rec.SizeMatches(ent.SizeBytes) {
				plan.resize[rec.ID] = ent
			}
		case models.SyncError:
			if mode == ModeDeep && onDisk {
				plan.revive[rec.ID] = ent
			}
		case models.SyncUnsynced:
			if mode != ModeDeep {
				continue
			}
			if _, err := e.pending.ReadFile(p); err == nil {
				plan.flush = append(plan.flush, models.FileRecord{ID: rec.ID, LocalPath: p, SizeBytes: rec.SizeBytes})
			} else if onDisk {
				// Bytes already on disk, e.g. written by an older client.
				plan.revive[rec.ID] = ent
			}
		}
	}

	paths := make([]string, 0, len(entries))
	for p := range entries {
		if !known[p] {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	for _, p := range paths {
		ent := entries[p]
		var folderID *models.ID
		if id, ok := folderByPath[path.Dir(p)]; ok {
			folderID = models.IDPtr(id)
		}
		rec := models.NewFileRecord(path.Base(p), ent.SizeBytes, folderID, ent.LastModified.UTC().Format(models.DateLayout))
		rec.SyncState = models.SyncSynced
		rec.LocalPath = p
		rec.LastModified = ent.LastModified.UnixMilli()
		plan.adopt = append(plan.adopt, rec)
	}
	return plan
}

// apply merges plan into d, re-checking against the live document so
// edits made while the pass ran are not clobbered.
func (e *Engine) apply(d *models.ProjectDocument, plan diskPlan, flushed map[models.ID]storage.Entry, rep *DiscoveryReport) {
	present := make(map[models.ID]bool, len(d.Folders))
	for _, f := range d.Folders {
		present[f.ID] = true
	}
	adoptedDirs := make(map[string]models.ID, len(plan.folders))
	for _, f := range plan.folders {
		if f.ParentID != nil && !present[*f.ParentID] {
			f.ParentID = nil
		}
		d.Folders = append(d.Folders, f)
		present[f.ID] = true
		adoptedDirs[f.LocalPath] = f.ID
		rep.FoldersAdopted++
	}
	// Files adopted by an earlier light pass sit in the root until their
	// directory becomes a folder.
	for i := range d.Files {
		rec := &d.Files[i]
		if rec.FolderID != nil || rec.LocalPath == "" {
			continue
		}
		if id, ok := adoptedDirs[path.Dir(rec.LocalPath)]; ok {
			rec.FolderID = models.IDPtr(id)
			rep.Linked++
		}
	}

	missing := make(map[models.ID]bool, len(plan.missing))
	for _, id := range plan.missing {
		missing[id] = true
	}
	paths := make(map[string]bool, len(d.Files))
	for i := range d.Files {
		rec := &d.Files[i]
		paths[ledger.FilePath(*rec, d.Folders)] = true
		switch {
		case missing[rec.ID] && rec.SyncState == models.SyncSynced:
			rec.SyncState = models.SyncError
			rep.Missing++
		case rec.SyncState == models.SyncSynced:
			if ent, ok := plan.resize[rec.ID]; ok {
				setSize(rec, ent)
				rep.Resized++
			}
		default:
			if ent, ok := plan.revive[rec.ID]; ok {
				setSize(rec, ent)
				rec.SyncState = models.SyncSynced
				rep.Revived++
			} else if _, ok := flushed[rec.ID]; ok {
				rec.SyncState = models.SyncSynced
				rep.Flushed++
			}
		}
	}
	for _, rec := range plan.adopt {
		if paths[rec.LocalPath] {
			continue
		}
		if rec.FolderID != nil && !present[*rec.FolderID] {
			rec.FolderID = nil
		}
		d.Files = append(d.Files, rec)
		rep.Adopted++
	}
}

func setSize(rec *models.FileRecord, ent storage.Entry) {
	rec.SizeBytes = ent.SizeBytes
	rec.Size = models.FormatSize(ent.SizeBytes)
	if !ent.LastModified.IsZero() {
		rec.LastModified = ent.LastModified.UnixMilli()
	}
}

// CycleReport is the result of one full reconciliation cycle.
type CycleReport struct {
	Discovery DiscoveryReport `json:"discovery"`
	Save      *SaveOutcome    `json:"save,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Cycle runs scan, diff and apply against the directory, then the gated
// push. A failing step ends the cycle; work already applied is kept.
func (e *Engine) Cycle(ctx context.Context, mode Mode) (CycleReport, error) {
	var rep CycleReport
	if e.local != nil {
		d, err := e.Discover(ctx, mode)
		rep.Discovery = d
		if err != nil {
			rep.Error = err.Error()
			return rep, err
		}
	}
	out, err := e.Save(ctx)
	if err != nil {
		rep.Error = err.Error()
		return rep, err
	}
	rep.Save = &out
	return rep, nil
}
