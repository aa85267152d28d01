package workflow

import (
	"errors"
	"fmt"

	"github.com/linesmerrill/case-portal-api/models"
)

// Error kinds. Match with errors.Is.
var (
	ErrInvalidTransition         = errors.New("invalid transition")
	ErrPermissionDenied          = errors.New("permission denied")
	ErrResubmissionLimitExceeded = errors.New("resubmission limit exceeded")
	ErrImmutableFieldViolation   = errors.New("immutable field violation")
	ErrValidation                = errors.New("validation error")
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("concurrent modification")
)

// Error is returned by every workflow operation. Kind is one of the sentinels above.
type Error struct {
	Kind error
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

// Unwrap exposes the kind to errors.Is
func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func denied(op string) *Error {
	return &Error{Kind: ErrPermissionDenied, Op: op}
}

// storeError translates store sentinels into workflow kinds and wraps anything else
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return &Error{Kind: ErrNotFound, Op: op}
	case errors.Is(err, models.ErrVersionConflict):
		return &Error{Kind: ErrConflict, Op: op}
	}
	return fmt.Errorf("%s: %w", op, err)
}
