package medication

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the repository layer.
var (
	ErrOrderNotFound   = errors.New("medication order not found")
	ErrRecordNotFound  = errors.New("administration record not found")
	ErrVersionConflict = errors.New("order was modified concurrently")
	ErrDuplicateKey    = errors.New("idempotency key already used for this order")
)

// ValidationError reports a missing or malformed field on a draft order.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// AuthorizationError reports that the actor's role does not permit the
// attempted action.
type AuthorizationError struct {
	Role   Role
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

// InvalidStateError reports an action that is not valid for the order's
// current status.
type InvalidStateError struct {
	Status OrderStatus
	Action string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("cannot %s order in status %q", e.Action, e.Status)
}

// PolicyViolation reports an administration attempted before the cooldown
// interval has elapsed.
type PolicyViolation struct {
	Remaining Remaining
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("dose interval not elapsed, next dose allowed in %dh%02dm",
		e.Remaining.Hours, e.Remaining.Minutes)
}

// StorageError wraps an infrastructure failure. It is the only retryable
// error kind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err as a StorageError unless it is already a typed domain
// error or a repository sentinel.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrDuplicateKey) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
