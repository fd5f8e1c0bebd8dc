package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted   = errors.New("session already started")
	ErrNotActive        = errors.New("session is not active")
	ErrIndexOutOfRange  = errors.New("question index out of range")
	ErrUnknownQuestion  = errors.New("question not in this exam")
	ErrNotConfirmed     = errors.New("submission not confirmed")
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrRunnerStopped    = errors.New("session runner stopped")
	// ErrActiveElsewhere means another client holds the session lease.
	ErrActiveElsewhere = errors.New("session is active on another client")
)

// ContentLoadError is fatal to starting a session. The session stays
// Initializing and Start may be retried.
type ContentLoadError struct {
	ExamID string
	Err    error
}

func (e *ContentLoadError) Error() string {
	return fmt.Sprintf("cannot load exam %s: %v", e.ExamID, e.Err)
}

func (e *ContentLoadError) Unwrap() error { return e.Err }
