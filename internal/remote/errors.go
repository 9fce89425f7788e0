package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind string

// Failure kinds.
const (
	KindUnauthenticated Kind = "auth-invalid"
	KindRateLimited     Kind = "rate-limited"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not-found"
	KindConflict        Kind = "conflict"
	KindTransient       Kind = "transient-network"
	KindRejected        Kind = "rejected"
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrUnauthenticated = errors.New("remote: unauthenticated")
	ErrRateLimited     = errors.New("remote: rate limited")
	ErrForbidden       = errors.New("remote: forbidden")
	ErrNotFound        = errors.New("remote: not found")
	ErrConflict        = errors.New("remote: revision conflict")
	ErrTransient       = errors.New("remote: transient failure")
	ErrRejected        = errors.New("remote: request rejected")
)

var sentinels = map[Kind]error{
	KindUnauthenticated: ErrUnauthenticated,
	KindRateLimited:     ErrRateLimited,
	KindForbidden:       ErrForbidden,
	KindNotFound:        ErrNotFound,
	KindConflict:        ErrConflict,
	KindTransient:       ErrTransient,
	KindRejected:        ErrRejected,
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Message string // server-provided message, if any
	Err     error  // underlying transport error, if any
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("remote: %s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("remote: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("remote: %s (status %d)", e.Kind, e.Status)
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or "" when err is not a remote error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
