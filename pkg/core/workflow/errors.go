package workflow

import (
	"context"
	"errors"

	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

var (
	// ErrCancelled means a human cancelled an escalation or a newer
	// invocation superseded this one. Nothing was committed and no failure
	// should be shown.
	ErrCancelled = resolvers.ErrCancelled

	ErrConfirmationRequired = errors.New("later steps hold results; confirm to discard them")
	ErrStepNotReady         = errors.New("step is not ready")
	ErrUnknownStaff         = errors.New("unknown staff member")
	ErrNothingToUndo        = errors.New("nothing to undo")
	ErrNothingToRedo        = errors.New("nothing to redo")
	ErrInvalidEdit          = errors.New("invalid edit")
	ErrUnexpected           = errors.New("unexpected failure")
)

// isCancellation reports whether err is a deliberate stop rather than a
// failure
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
