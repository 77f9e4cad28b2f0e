package apiwatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryhazerus/apiwatch/notify"
	"github.com/ryhazerus/apiwatch/store"
)

var (
	// ErrNotFound is returned when a resource, rule or notification does
	// not exist or does not belong to the requesting user.
	ErrNotFound = errors.New("apiwatch: not found")
	// ErrValidation is returned for malformed input. Errors carrying the
	// failing field are of type *ValidationError.
	ErrValidation = errors.New("apiwatch: validation failed")
	// ErrConflict is returned when a create or rename would duplicate an
	// existing resource.
	ErrConflict = errors.New("apiwatch: already exists")
	// ErrTransient is returned when storage could not confirm the change.
	// The usage was not recorded and the caller should retry.
	ErrTransient = errors.New("apiwatch: storage unavailable, retry")
	// ErrInternal wraps unexpected failures.
	ErrInternal = errors.New("apiwatch: internal error")
)

// ValidationError names the input field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("apiwatch: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// translate maps backend errors onto the package taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict), errors.Is(err, ErrTransient), errors.Is(err, ErrInternal):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrConflict
	case errors.Is(err, store.ErrTransient), errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}
