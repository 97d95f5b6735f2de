package sync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/njoerd114/bdcollect/internal/model"
)

var (
	// ErrNoConnection is returned when an operation needs the network and
	// the gate reports it unavailable. The core never retries on its own.
	ErrNoConnection = errors.New("no network connection")

	// ErrPrecondition is returned when an operation is rejected before any
	// local mutation or network call.
	ErrPrecondition = errors.New("precondition violated")
)

// FetchError reports which half of a full refresh failed. The half that
// succeeded has already been applied.
type FetchError struct {
	CollectionErr error
	WishlistErr   error
}

func (e *FetchError) Error() string {
	var parts []string
	if e.CollectionErr != nil {
		parts = append(parts, "collection: "+e.CollectionErr.Error())
	}
	if e.WishlistErr != nil {
		parts = append(parts, "wishlist: "+e.WishlistErr.Error())
	}
	return "refresh failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes both halves to errors.Is / errors.As.
func (e *FetchError) Unwrap() []error {
	var errs []error
	if e.CollectionErr != nil {
		errs = append(errs, e.CollectionErr)
	}
	if e.WishlistErr != nil {
		errs = append(errs, e.WishlistErr)
	}
	return errs
}

// Partial reports whether exactly one half failed.
func (e *FetchError) Partial() bool {
	return (e.CollectionErr == nil) != (e.WishlistErr == nil)
}

// ToggleError reports a flag mutation whose remote confirmation failed. The
// optimistic local change has been rolled back when it is returned.
type ToggleError struct {
	ID   model.Identity
	Flag model.Flag
	Err  error
}

func (e *ToggleError) Error() string {
	return fmt.Sprintf("toggling %s on %s: %v", e.Flag, e.ID, e.Err)
}

func (e *ToggleError) Unwrap() error { return e.Err }

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
