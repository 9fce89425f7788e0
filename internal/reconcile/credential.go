package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/localstorage"
	"github.com/starford/plansync/internal/remote"
)

// SetCredential validates token with one remote call and, if accepted,
// keeps it in browser storage and on the remote client. The credential
// never enters the project document.
func (e *Engine) SetCredential(ctx context.Context, token string) error {
	if e.remote == nil {
		return ErrRemoteDisabled
	}
	if token == "" {
		return fmt.Errorf("reconcile: empty credential: %w", apperr.ErrInvalidInput)
	}
	if err := e.remote.ValidateCredential(ctx, token); err != nil {
		if errors.Is(err, remote.ErrUnauthenticated) || errors.Is(err, remote.ErrForbidden) || errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("reconcile: credential rejected: %w: %w", apperr.ErrInvalidInput, err)
		}
		return fmt.Errorf("reconcile: validate credential: %w", err)
	}
	if err := e.browser.SetCredential(token); err != nil {
		return fmt.Errorf("reconcile: store credential: %w", err)
	}
	e.remote.SetToken(token)
	e.mu.Lock()
	e.staleRevision = true
	e.mu.Unlock()
	e.logger.Info("reconcile: remote credential accepted")
	e.notifier.Notify(EventAuth, map[string]any{"authenticated": true})
	e.NotifyChanged()
	return nil
}

// ClearCredential forgets the credential.
func (e *Engine) ClearCredential() error {
	if e.remote != nil {
		e.remote.SetToken("")
	}
	if err := e.browser.ClearCredential(); err != nil {
		return fmt.Errorf("reconcile: clear credential: %w", err)
	}
	e.notifier.Notify(EventAuth, map[string]any{"authenticated": false, "reason": "cleared"})
	return nil
}

// Restore loads the stored credential and directory grant state. It is
// called once at start before the first pull.
func (e *Engine) Restore() error {
	if e.remote != nil {
		tok, err := e.browser.Credential()
		if err != nil {
			return fmt.Errorf("reconcile: load credential: %w", err)
		}
		if tok != "" {
			e.remote.SetToken(tok)
		}
	}
	if e.local == nil {
		return nil
	}
	st, err := e.browser.DirectoryState()
	if err != nil {
		return fmt.Errorf("reconcile: load directory state: %w", err)
	}
	if st.Name != "" && !st.Enabled {
		e.local.Revoke()
		e.logger.Info("reconcile: directory left disconnected", slog.String("name", st.Name))
	}
	return nil
}

// GrantDirectory (re)grants the local directory.
func (e *Engine) GrantDirectory() error {
	if e.local == nil {
		return ErrNoDirectory
	}
	if err := e.local.Grant(); err != nil {
		e.permissionLost(err)
		return fmt.Errorf("reconcile: grant directory: %w", err)
	}
	if err := e.browser.SetDirectoryState(localstorage.DirectoryState{Enabled: true, Name: e.local.Name()}); err != nil {
		e.logger.Warn("reconcile: persist directory state failed", slog.String("error", err.Error()))
	}
	e.clearReconnect()
	e.logger.Info("reconcile: directory granted", slog.String("name", e.local.Name()))
	return nil
}

// RevokeDirectory disconnects the local directory.
func (e *Engine) RevokeDirectory() error {
	if e.local == nil {
		return ErrNoDirectory
	}
	e.local.Revoke()
	if err := e.browser.SetDirectoryState(localstorage.DirectoryState{Enabled: false, Name: e.local.Name()}); err != nil {
		e.logger.Warn("reconcile: persist directory state failed", slog.String("error", err.Error()))
	}
	e.logger.Info("reconcile: directory revoked", slog.String("name", e.local.Name()))
	return nil
}
