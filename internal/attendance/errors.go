package attendance

import (
	"errors"
	"fmt"
)

// Rejection reasons surfaced verbatim to callers. All are client-recoverable.
var (
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidExpiration  = errors.New("invalid expiration")
	ErrNoActiveCode       = errors.New("no active code for session")
	ErrCodeExpired        = errors.New("code expired or deactivated")
	ErrCodeMismatch       = errors.New("code does not match")
	ErrAlreadyCheckedIn   = errors.New("already checked in")
	ErrNotEnrolled        = errors.New("not enrolled in class")
	ErrAttendanceDisabled = errors.New("attendance not enabled for session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrRosterIntegrity    = errors.New("roster smaller than recorded check-ins")
)

// StorageError wraps persistence-layer failures that don't map to a rejection
// reason. Callers treat it as retryable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
