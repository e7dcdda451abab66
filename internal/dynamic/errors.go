package dynamic

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterrupted is the kind of every error raised when a branch is stopped
// by the race itself rather than by its own execution. These errors are
// always fatal to the branch that raises them and never cross the Exec
// boundary; callers only ever see them as the reason a branch contributed no
// result.
var ErrInterrupted = errors.New("dynamic execution interrupted")

// InterruptedError records why a branch had to abandon the race.
type InterruptedError struct {
	// Mode is the branch that raised the error.
	Mode Mode

	// Msg describes the specific way the race was lost.
	Msg string
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInterrupted.Error(), e.Msg)
}

func (e *InterruptedError) Unwrap() error { return ErrInterrupted }

func interruptedf(mode Mode, format string, args ...any) error {
	return &InterruptedError{Mode: mode, Msg: fmt.Sprintf(format, args...)}
}

// isRaceInterrupt reports whether err indicates that the branch was stopped
// by the race (its own cancellation or a lost stop attempt) rather than by a
// genuine execution failure.
func isRaceInterrupt(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
