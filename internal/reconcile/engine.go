package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/metrics"
	"github.com/starford/plansync/internal/ratelimit"
	"github.com/starford/plansync/internal/remote"
	"github.com/starford/plansync/internal/storage"
)

// DefaultPushDebounce coalesces bursts of edits into one save.
const DefaultPushDebounce = time.Second

// Phase is the current step of a reconciliation cycle.
type Phase string

// Cycle phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseScanning Phase = "scanning"
	PhaseDiffing  Phase = "diffing"
	PhaseApplying Phase = "applying"
	PhasePushing  Phase = "pushing"
	PhasePulling  Phase = "pulling"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Phase             Phase            `json:"phase"`
	LastSave          *SaveOutcome     `json:"lastSave,omitempty"`
	LastPull          *PullResult      `json:"lastPull,omitempty"`
	ReconnectRequired bool             `json:"reconnectRequired"`
	RemoteEnabled     bool             `json:"remoteEnabled"`
	HasCredential     bool             `json:"hasCredential"`
	DirectoryName     string           `json:"directoryName,omitempty"`
	DirectoryGranted  bool             `json:"directoryGranted"`
	PendingFiles      int              `json:"pendingFiles"`
	Dirty             bool             `json:"dirty"`
	Cursor            ratelimit.Cursor `json:"cursor"`
	LastErrorKind     string           `json:"lastErrorKind,omitempty"`
}

// Engine reconciles the ledger with the other tiers.
type Engine struct {
	ledger     *ledger.Ledger
	local      Directory
	pending    *storage.Memory
	files      fileStore
	browser    Browser
	remote     remote.Store
	remotePath string
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	now        func() time.Time
	notifier   Notifier
	metrics    *metrics.Metrics
	debounce   time.Duration

	pushMu  sync.Mutex // one push at a time
	localMu sync.Mutex // one local pass at a time
	sf      singleflight.Group
	changed chan struct{}

	mu             sync.Mutex
	phase          Phase
	revision       remote.RevisionToken
	staleRevision  bool
	lastPushedHash string
	dirty          bool
	gen            uint64 // bumped by NotifyChanged
	reconnect      bool
	lastSave       *SaveOutcome
	lastPull       *PullResult
	lastErrKind    string
}

// New builds an Engine from sc.
func New(sc SyncContext) (*Engine, error) {
	if sc.Ledger == nil || sc.Browser == nil || sc.Limiter == nil {
		return nil, fmt.Errorf("reconcile: ledger, browser storage and limiter are required")
	}
	if sc.Logger == nil {
		sc.Logger = slog.Default()
	}
	if sc.Clock == nil {
		sc.Clock = time.Now
	}
	if sc.Notifier == nil {
		sc.Notifier = nopNotifier{}
	}
	if sc.PushDebounce <= 0 {
		sc.PushDebounce = DefaultPushDebounce
	}
	if sc.RemotePath == "" {
		sc.RemotePath = remote.DefaultPath
	}
	pending := storage.NewMemory("pending")
	e := &Engine{
		ledger:     sc.Ledger,
		local:      sc.Local,
		pending:    pending,
		browser:    sc.Browser,
		remote:     sc.Remote,
		remotePath: sc.RemotePath,
		limiter:    sc.Limiter,
		logger:     sc.Logger,
		now:        sc.Clock,
		notifier:   sc.Notifier,
		metrics:    sc.Metrics,
		debounce:   sc.PushDebounce,
		changed:    make(chan struct{}, 1),
		phase:      PhaseIdle,
	}
	e.files = fileStore{disk: sc.Local, pending: pending, diskFailed: e.diskFailed}
	return e, nil
}

func (e *Engine) diskFailed(p string, err error) {
	if !e.permissionLost(err) {
		e.logger.Warn("reconcile: disk write failed, keeping bytes pending",
			slog.String("path", p), slog.String("error", err.Error()))
	}
}

// Ledger returns the ledger the engine reconciles.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Phase:             e.phase,
		LastSave:          e.lastSave,
		LastPull:          e.lastPull,
		ReconnectRequired: e.reconnect,
		RemoteEnabled:     e.remote != nil,
		Dirty:             e.dirty,
		LastErrorKind:     e.lastErrKind,
	}
	e.mu.Unlock()
	if e.remote != nil {
		st.HasCredential = e.remote.HasToken()
	}
	if e.local != nil {
		st.DirectoryName = e.local.Name()
		st.DirectoryGranted = e.local.Granted()
	}
	st.PendingFiles = e.pending.Len()
	st.Cursor = e.limiter.Cursor()
	return st
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

func (e *Engine) setErrKind(kind string) {
	e.mu.Lock()
	e.lastErrKind = kind
	e.mu.Unlock()
}

// permissionLost flags the directory as needing reconnection.
func (e *Engine) permissionLost(err error) bool {
	if !errors.Is(err, storage.ErrPermissionLost) {
		return false
	}
	e.mu.Lock()
	was := e.reconnect
	e.reconnect = true
	e.lastErrKind = "permission-lost"
	e.mu.Unlock()
	if !was {
		e.logger.Warn("reconcile: directory permission lost, reconnect required")
		e.notifier.Notify(EventReconnect, map[string]any{"reconnectRequired": true})
	}
	return true
}

func (e *Engine) clearReconnect() {
	e.mu.Lock()
	was := e.reconnect
	e.reconnect = false
	e.mu.Unlock()
	if was {
		e.notifier.Notify(EventReconnect, map[string]any{"reconnectRequired": false})
	}
}

func (e *Engine) localUsable() bool {
	return e.local != nil && e.local.Granted()
}

// remoteGet performs a limiter-accounted Get.
func (e *Engine) remoteGet(ctx context.Context) (remote.Snapshot, error) {
	start := time.Now()
	e.limiter.RecordCall()
	snap, err := e.remote.Get(ctx, e.remotePath)
	e.observeCall("get", err, time.Since(start))
	return snap, err
}

// remotePut performs a limiter-accounted Put.
func (e *Engine) remotePut(ctx context.Context, snap *documentSnapshot, expected remote.RevisionToken) (remote.RevisionToken, error) {
	start := time.Now()
	e.limiter.RecordCall()
	rev, err := e.remote.Put(ctx, e.remotePath, snap.doc, expected)
	e.observeCall("put", err, time.Since(start))
	return rev, err
}

func (e *Engine) observeCall(op string, err error, d time.Duration) {
	kind := "ok"
	if err != nil {
		kind = string(remote.KindOf(err))
		if kind == "" {
			kind = "decode"
		}
	}
	e.metrics.RecordRemoteCall(op, kind, d)
	cur := e.limiter.Cursor()
	e.metrics.SetLimiter(cur.MinInterval, cur.CallsInWindow)
}

// onAuthInvalid clears the credential everywhere.
func (e *Engine) onAuthInvalid() {
	e.remote.SetToken("")
	if err := e.browser.ClearCredential(); err != nil {
		e.logger.Warn("reconcile: clear credential failed", slog.String("error", err.Error()))
	}
	e.setErrKind(string(remote.KindUnauthenticated))
	e.logger.Warn("reconcile: remote credential rejected, cleared")
	e.notifier.Notify(EventAuth, map[string]any{"authenticated": false, "reason": "auth-invalid"})
}

func (e *Engine) onRateLimited() {
	d := e.limiter.OnRateLimited()
	e.setErrKind(string(remote.KindRateLimited))
	e.logger.Warn("reconcile: remote rate limited, backing off", slog.String("min_interval", d.String()))
	cur := e.limiter.Cursor()
	e.metrics.SetLimiter(cur.MinInterval, cur.CallsInWindow)
}
