package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Fatal errors abort the current command with a non-zero exit.
var (
	ErrPrerequisiteMissing = errors.New("prerequisite missing")
	ErrBuildFailed         = errors.New("build failed")
	ErrStartFailed         = errors.New("start failed")
	ErrInvalidTransition   = errors.New("invalid state transition")
)

// Recoverable errors are reported as warnings; the deployment stays usable.
var (
	ErrDataBootstrapFailed = errors.New("data bootstrap failed")
	ErrReadinessTimeout    = errors.New("readiness timeout")
	ErrResetFailed         = errors.New("reset failed")
)

// IsRecoverable reports whether err leaves the deployment usable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrDataBootstrapFailed) ||
		errors.Is(err, ErrReadinessTimeout) ||
		errors.Is(err, ErrResetFailed)
}

// ResetError lists what a full reset could not remove.
type ResetError struct {
	Dirs []string
	Errs []error
}

func (e *ResetError) Error() string {
	if len(e.Dirs) == 0 {
		return fmt.Sprintf("%s: %v", ErrResetFailed, errors.Join(e.Errs...))
	}
	return fmt.Sprintf("%s: could not remove %s: %v", ErrResetFailed, strings.Join(e.Dirs, ", "), errors.Join(e.Errs...))
}

func (e *ResetError) Is(target error) bool {
	return target == ErrResetFailed
}

func (e *ResetError) Unwrap() []error {
	return e.Errs
}
