package session

import (
	"time"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/submission"
)

// SubmitResult is reported to the UI after every submission attempt.
type SubmitResult struct {
	Method   model.SubmitMethod
	Outcome  submission.Outcome
	Message  string
	Attempts int
	Err      error
	// Status is the session status after the attempt.
	Status model.SessionStatus
}

// Listener is the event surface a UI shell binds to. Callbacks run on the
// goroutine that owns the Controller and must not call back into it.
type Listener interface {
	OnAnswerChanged(questionID string, a model.Answer)
	OnTick(remaining time.Duration)
	OnSubmitResult(r SubmitResult)
	OnStatusChanged(from, to model.SessionStatus)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnAnswerChanged(string, model.Answer) {}
func (NopListener) OnTick(time.Duration) {}
func (NopListener) OnSubmitResult(SubmitResult) {}
func (NopListener) OnStatusChanged(_, _ model.SessionStatus) {}
