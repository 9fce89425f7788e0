package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/remote"
)

// Source says which tier a pull loaded the document from.
type Source string

// Pull sources, in precedence order.
const (
	SourceRemote  Source = "remote"
	SourceLocal   Source = "local"
	SourceDefault Source = "default"
)

// RemoteSuperseded is the RemoteKind of a pull whose document was dropped
// because the ledger changed while it was fetched.
const RemoteSuperseded = "superseded"

// PullResult reports a PullMerge.
type PullResult struct {
	Source     Source `json:"source"`
	Revision   string `json:"revision,omitempty"`
	RemoteKind string `json:"remoteKind,omitempty"` // why the remote was not used
	Skipped    bool   `json:"skipped,omitempty"`
}

// PullMerge loads the document, preferring the remote, then browser storage,
// then the built-in default. A remote document replaces the ledger wholesale.
// Concurrent callers share one pull.
func (e *Engine) PullMerge(ctx context.Context) (PullResult, error) {
	v, err, _ := e.sf.Do("remote:pull", func() (any, error) {
		return e.pullMerge(ctx)
	})
	if err != nil {
		return PullResult{}, err
	}
	return v.(PullResult), nil
}

// PullIfIdle pulls from the remote only when no local change is waiting to
// be pushed, so a periodic pull never overwrites unsaved work. It holds the
// push lock for the whole pull and drops the remote copy if the ledger moved
// while it was being fetched. Browser storage is not consulted.
func (e *Engine) PullIfIdle(ctx context.Context) (PullResult, error) {
	if e.remote == nil {
		return PullResult{Skipped: true}, nil
	}
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	dirty := e.dirty
	e.mu.Unlock()
	if dirty {
		return PullResult{Skipped: true}, nil
	}

	e.setPhase(PhasePulling)
	defer e.setPhase(PhaseIdle)

	base := e.ledger.Version()
	res, _ := e.pullRemote(ctx, func(doc *models.ProjectDocument) bool {
		return e.ledger.ReplaceIf(doc, SourcePull, base)
	})
	e.finishPull(res)
	return res, nil
}

func (e *Engine) pullMerge(ctx context.Context) (PullResult, error) {
	e.setPhase(PhasePulling)
	defer e.setPhase(PhaseIdle)

	var res PullResult
	if e.remote != nil {
		var ok bool
		res, ok = e.pullRemote(ctx, func(doc *models.ProjectDocument) bool {
			e.ledger.Replace(doc, SourcePull)
			return true
		})
		if ok {
			e.finishPull(res)
			return res, nil
		}
	}

	doc, err := e.browser.LoadDocument()
	switch {
	case err == nil:
		e.ledger.Replace(doc, SourcePull)
		res.Source = SourceLocal
	case errors.Is(err, apperr.ErrNotFound):
		e.ledger.Replace(models.DefaultDocument(e.now()), SourcePull)
		res.Source = SourceDefault
	default:
		// Corrupt or unreadable browser storage: keep going on defaults
		// rather than refuse to start.
		e.logger.Warn("reconcile: load from browser storage failed", slog.String("error", err.Error()))
		e.ledger.Replace(models.DefaultDocument(e.now()), SourcePull)
		res.Source = SourceDefault
	}
	e.finishPull(res)
	return res, nil
}

// pullRemote fetches the remote document through the limiter and hands it
// to replace. It reports whether the ledger now holds the remote copy.
func (e *Engine) pullRemote(ctx context.Context, replace func(*models.ProjectDocument) bool) (PullResult, bool) {
	var res PullResult
	if !e.limiter.CanProceed() {
		res.RemoteKind = string(StatusThrottled)
		return res, false
	}
	snap, err := e.remoteGet(ctx)
	if err != nil {
		res.RemoteKind = e.classifyPullErr(err)
		return res, false
	}
	if !replace(snap.Document) {
		// The ledger changed during the fetch. Keep it and make the next
		// push re-read the revision first.
		e.mu.Lock()
		e.staleRevision = true
		e.mu.Unlock()
		e.logger.Info("reconcile: pulled document dropped, ledger changed meanwhile")
		res.RemoteKind = RemoteSuperseded
		res.Skipped = true
		return res, false
	}
	e.mu.Lock()
	e.revision = snap.Revision
	e.staleRevision = false
	e.lastPushedHash = contentHash(snap.Document)
	e.lastErrKind = ""
	e.mu.Unlock()
	if err := e.browser.SaveDocument(snap.Document); err != nil {
		e.logger.Warn("reconcile: backup of pulled document failed", slog.String("error", err.Error()))
	}
	return PullResult{Source: SourceRemote, Revision: snap.Revision.String()}, true
}

func (e *Engine) finishPull(res PullResult) {
	e.mu.Lock()
	e.lastPull = &res
	e.mu.Unlock()
	e.logger.Info("reconcile: pulled", slog.String("source", string(res.Source)), slog.String("remote_kind", res.RemoteKind))
	e.notifier.Notify(EventStatus, res)
}

func (e *Engine) classifyPullErr(err error) string {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		// Nothing to load yet. The first push creates the file.
		e.setRevision(remote.RevisionToken{})
		return string(remote.KindNotFound)
	case errors.Is(err, remote.ErrUnauthenticated):
		e.onAuthInvalid()
		return string(remote.KindUnauthenticated)
	case errors.Is(err, remote.ErrRateLimited):
		e.onRateLimited()
		return string(remote.KindRateLimited)
	}
	kind := string(remote.KindOf(err))
	if kind == "" {
		kind = "decode"
	}
	e.setErrKind(kind)
	e.logger.Warn("reconcile: remote pull failed", slog.String("error", err.Error()))
	return kind
}
