// Package reconcile is the sync engine. It keeps the Change Ledger, the
// granted local directory, browser storage and the remote document in step.
package reconcile

import (
	"errors"
	"log/slog"
	"time"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/localstorage"
	"github.com/starford/plansync/internal/metrics"
	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/ratelimit"
	"github.com/starford/plansync/internal/remote"
	"github.com/starford/plansync/internal/storage"
)

// Errors returned by the engine.
var (
	ErrNoDirectory     = errors.New("reconcile: no local directory configured")
	ErrRemoteDisabled  = errors.New("reconcile: remote sync is not configured")
	ErrInvalidFileName = errors.New("reconcile: invalid file name")
)

// Ledger change sources set by the engine itself.
const (
	SourcePull      = "pull"
	SourceDiscovery = "discovery"
	SourceEngine    = "engine"
)

// Browser is the persistent browser-storage tier.
type Browser interface {
	SaveDocument(doc *models.ProjectDocument) error
	LoadDocument() (*models.ProjectDocument, error)
	Credential() (string, error)
	SetCredential(token string) error
	ClearCredential() error
	DirectoryState() (localstorage.DirectoryState, error)
	SetDirectoryState(st localstorage.DirectoryState) error
}

// Directory is a granted local directory handle.
type Directory interface {
	storage.Provider
	Grant() error
	Revoke()
}

// Notifier receives user-facing sync events.
type Notifier interface {
	Notify(event string, data any)
}

// Event names published through the Notifier.
const (
	EventStatus        = "sync.status"
	EventAuth          = "sync.auth"
	EventReconnect     = "sync.reconnect"
	EventConflict      = "sync.conflict"
	EventDiscovered    = "sync.discovered"
	EventLedgerChanged = "ledger.changed"
)

// SyncContext carries every collaborator of an Engine. Local, Remote,
// Notifier and Metrics are optional.
type SyncContext struct {
	Ledger       *ledger.Ledger
	Local        Directory
	Browser      Browser
	Remote       remote.Store
	RemotePath   string
	Limiter      *ratelimit.Limiter
	Logger       *slog.Logger
	Clock        func() time.Time
	Notifier     Notifier
	Metrics      *metrics.Metrics
	PushDebounce time.Duration
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}
