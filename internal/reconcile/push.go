package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/plansync/internal/checksum"
	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/remote"
)

// Level is how far a save got.
type Level string

// Save levels. A save that fails to reach browser storage has no level and
// is returned as an error instead.
const (
	LevelSavedLocal  Level = "saved-local"
	LevelSyncedCloud Level = "synced-cloud"
)

// StatusKind explains why a save stopped at LevelSavedLocal, or notes a
// shortcut taken on the way to LevelSyncedCloud.
type StatusKind string

// Save status kinds.
const (
	StatusNone        StatusKind = "none"
	StatusTransient   StatusKind = "transient"
	StatusRateLimited StatusKind = "rate-limited"
	StatusConflict    StatusKind = "conflict"
	StatusAuthInvalid StatusKind = "auth-invalid"
	StatusThrottled   StatusKind = "throttled-locally"
	StatusUnchanged   StatusKind = "unchanged"
)

// SaveOutcome reports a save.
type SaveOutcome struct {
	Level    Level      `json:"level"`
	Status   StatusKind `json:"status"`
	Message  string     `json:"message"`
	Revision string     `json:"revision,omitempty"`
	At       time.Time  `json:"at"`
}

// retry reports whether the remote push should be attempted again later.
func (o SaveOutcome) retry() bool {
	switch o.Status {
	case StatusTransient, StatusRateLimited, StatusThrottled, StatusConflict:
		return true
	}
	return false
}

type documentSnapshot struct {
	doc  *models.ProjectDocument
	hash string
}

// contentHash ignores lastUpdated so that re-saving unchanged content is
// recognized as a no-op.
func contentHash(doc *models.ProjectDocument) string {
	d := *doc
	d.LastUpdated = ""
	data, err := models.Encode(&d)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

// Save persists the ledger to browser storage and, when possible, to the
// remote store. Only a browser-storage failure is returned as an error; every
// remote problem is reported through the outcome.
func (e *Engine) Save(ctx context.Context) (SaveOutcome, error) {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	// Capture after taking the lock so the newest ledger state is pushed.
	now := e.now()
	stamp := now.UTC().Format(models.TimeLayout)
	_ = e.ledger.Update(ledger.Change{Kind: ledger.KindProject, Source: SourceEngine}, func(d *models.ProjectDocument) error {
		d.LastUpdated = stamp
		return nil
	})
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	version := e.ledger.Version()
	doc := e.ledger.Snapshot()
	snap := &documentSnapshot{doc: doc, hash: contentHash(doc)}

	if err := e.browser.SaveDocument(doc); err != nil {
		e.setErrKind("local-persist")
		e.logger.Error("reconcile: save to browser storage failed", slog.String("error", err.Error()))
		e.notifier.Notify(EventStatus, map[string]any{"level": "failed", "message": "保存失败"})
		e.metrics.RecordSave("failed", "local-persist")
		return SaveOutcome{}, fmt.Errorf("reconcile: save: %w", err)
	}

	out := e.pushRemote(ctx, snap)
	out.At = now
	if out.Level == LevelSyncedCloud {
		out.Message = "已同步到云端"
	} else {
		out.Message = "已保存到本地"
	}

	e.mu.Lock()
	e.lastSave = &out
	// Edits that landed after the snapshot are not in what was saved.
	if e.gen == gen && e.ledger.Version() == version {
		e.dirty = out.retry()
	} else {
		e.dirty = true
	}
	if out.Status == StatusNone || out.Status == StatusUnchanged {
		e.lastErrKind = ""
	}
	e.mu.Unlock()

	e.metrics.RecordSave(string(out.Level), string(out.Status))
	e.notifier.Notify(EventStatus, out)
	e.logger.Info("reconcile: saved",
		slog.String("level", string(out.Level)),
		slog.String("status", string(out.Status)))
	return out, nil
}

func (e *Engine) pushRemote(ctx context.Context, snap *documentSnapshot) SaveOutcome {
	local := SaveOutcome{Level: LevelSavedLocal, Status: StatusNone}
	if e.remote == nil || !e.remote.HasToken() {
		return local
	}

	e.mu.Lock()
	unchanged := snap.hash != "" && snap.hash == e.lastPushedHash && !e.staleRevision
	stale := e.staleRevision
	e.mu.Unlock()
	if unchanged {
		return SaveOutcome{Level: LevelSyncedCloud, Status: StatusUnchanged, Revision: e.currentRevision().String()}
	}

	if stale {
		if st, ok := e.refreshRevision(ctx); !ok {
			local.Status = st
			return local
		}
	}

	if !e.limiter.CanProceed() {
		local.Status = StatusThrottled
		return local
	}

	e.setPhase(PhasePushing)
	defer e.setPhase(PhaseIdle)

	rev, err := e.remotePut(ctx, snap, e.currentRevision())
	if errors.Is(err, remote.ErrConflict) || (errors.Is(err, remote.ErrNotFound) && !e.currentRevision().IsZero()) {
		e.logger.Info("reconcile: remote changed, reconciling")
		e.notifier.Notify(EventConflict, map[string]string{"message": "remote changed, reconciling"})
		e.mu.Lock()
		e.staleRevision = true
		e.mu.Unlock()
		if st, ok := e.refreshRevision(ctx); !ok {
			local.Status = st
			return local
		}
		if !e.limiter.CanProceed() {
			local.Status = StatusConflict
			return local
		}
		rev, err = e.remotePut(ctx, snap, e.currentRevision())
	}

	if err != nil {
		local.Status = e.classifyPushErr(err)
		return local
	}

	e.mu.Lock()
	e.revision = rev
	e.staleRevision = false
	e.lastPushedHash = snap.hash
	e.mu.Unlock()
	return SaveOutcome{Level: LevelSyncedCloud, Status: StatusNone, Revision: rev.String()}
}

// refreshRevision re-reads the remote revision so the next Put is based on
// it. The remote content is discarded: the local snapshot wins.
func (e *Engine) refreshRevision(ctx context.Context) (StatusKind, bool) {
	if !e.limiter.CanProceed() {
		return StatusConflict, false
	}
	snap, err := e.remoteGet(ctx)
	switch {
	case err == nil:
		e.setRevision(snap.Revision)
	case errors.Is(err, remote.ErrNotFound):
		e.setRevision(remote.RevisionToken{})
	default:
		st := e.classifyPushErr(err)
		if st == StatusTransient {
			st = StatusConflict
		}
		return st, false
	}
	return StatusNone, true
}

func (e *Engine) setRevision(r remote.RevisionToken) {
	e.mu.Lock()
	e.revision = r
	e.staleRevision = false
	e.mu.Unlock()
}

func (e *Engine) currentRevision() remote.RevisionToken {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

func (e *Engine) classifyPushErr(err error) StatusKind {
	switch {
	case errors.Is(err, remote.ErrUnauthenticated):
		e.onAuthInvalid()
		return StatusAuthInvalid
	case errors.Is(err, remote.ErrRateLimited):
		e.onRateLimited()
		return StatusRateLimited
	case errors.Is(err, remote.ErrConflict):
		e.setErrKind(string(remote.KindConflict))
		return StatusConflict
	}
	kind := string(remote.KindOf(err))
	if kind == "" {
		kind = string(remote.KindTransient)
	}
	e.setErrKind(kind)
	e.logger.Warn("reconcile: remote push failed", slog.String("error", err.Error()))
	return StatusTransient
}

// NotifyChanged schedules a debounced save. It never blocks.
func (e *Engine) NotifyChanged() {
	e.mu.Lock()
	e.dirty = true
	e.gen++
	e.mu.Unlock()
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// Run drives debounced saves until ctx is done. Ledger mutations made by
// users and by discovery feed it; engine-internal and pulled changes do not.
func (e *Engine) Run(ctx context.Context) error {
	unsub := e.ledger.Subscribe(func(c ledger.Change) {
		e.notifier.Notify(EventLedgerChanged, map[string]string{"kind": string(c.Kind), "id": c.ID.String(), "source": c.Source})
		if c.Source == SourceEngine || c.Source == SourcePull {
			return
		}
		e.NotifyChanged()
	})
	defer unsub()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func(d time.Duration) {
		if timer == nil {
			timer = time.NewTimer(d)
			timerCh = timer.C
		} else {
			timer.Reset(d)
		}
	}

	e.logger.Info("reconcile: push loop started", slog.String("debounce", e.debounce.String()))
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.logger.Info("reconcile: push loop stopped")
			return nil

		case <-e.changed:
			schedule(e.debounce)

		case <-timerCh:
			out, err := e.Save(ctx)
			if err != nil {
				// Browser storage refused the write; retry on the next edit.
				continue
			}
			if out.retry() {
				schedule(max(e.limiter.Cursor().MinInterval, e.debounce))
			}
		}
	}
}
