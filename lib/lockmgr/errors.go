package lockmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled is returned when the wait for a name's permit was cancelled,
	// either by the caller's context or by an elapsed timeout. The returned
	// error also matches the context cause (context.Canceled or
	// context.DeadlineExceeded) via errors.Is.
	ErrCanceled = errors.New("lockmgr: wait for lock canceled")

	// ErrInvalidArgument is returned when Acquire is called with a nil context
	ErrInvalidArgument = errors.New("lockmgr: invalid argument")

	// ErrReentrant is returned (only with Options.DetectReentrancy) when the
	// holder carried by the context already holds the requested name
	ErrReentrant = errors.New("lockmgr: reentrant acquisition")
)

// newCanceledError wraps the context cause so that both ErrCanceled and the
// cause itself can be matched
func newCanceledError(name string, cause error) error {
	return fmt.Errorf("%w: %q: %w", ErrCanceled, name, cause)
}
