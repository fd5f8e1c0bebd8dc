// Package submission delivers a completed answer set to the Submission Service
// and classifies the outcome.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

var (
	ErrUnreachable = errors.New("submission service unreachable")
	ErrRejected    = errors.New("submission rejected")
)

// Outcome classifies a submission attempt.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnreachable Outcome = "unreachable"
)

// Result is what the Gateway reports back to the Session Controller.
type Result struct {
	Outcome  Outcome
	Message  string
	Attempts int
	Err      error
}

// Accepted reports whether the service took the submission.
func (r Result) Accepted() bool { return r.Outcome == OutcomeAccepted }

// RejectedError is a definitive refusal by the service. Retrying will not help.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRejected, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Transport performs one delivery attempt. Errors that do not match
// ErrRejected are treated as the service being unreachable.
type Transport interface {
	Deliver(ctx context.Context, s *model.Submission) (*model.SubmissionResponse, error)
}

// Options tunes retry behaviour.
type Options struct {
	MaxRetries     int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// Gateway retries unreachable attempts with exponential backoff; a rejection ends immediately.
type Gateway struct {
	transport Transport
	opts      Options
	log       zerolog.Logger
}

// NewGateway creates a new Gateway.
func NewGateway(transport Transport, opts Options, log zerolog.Logger) *Gateway {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Gateway{
		transport: transport,
		opts:      opts,
		log:       log.With().Str("component", "submission_gateway").Logger(),
	}
}

// Submit delivers s. It never returns a Go error; the outcome is in Result.
func (g *Gateway) Submit(ctx context.Context, s *model.Submission) Result {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.opts.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.opts.MaxRetries)), ctx)

	attempts := 0
	var resp *model.SubmissionResponse

	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, g.opts.AttemptTimeout)
		defer cancel()

		r, err := g.transport.Deliver(attemptCtx, s)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		g.log.Warn().Err(err).
			Str("exam_id", s.ExamID).
			Str("user_id", s.UserID).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("Submission attempt failed, retrying")
	}

	err := backoff.RetryNotify(op, policy, notify)

	switch {
	case err == nil:
		g.log.Info().
			Str("exam_id", s.ExamID).
			Str("user_id", s.UserID).
			Str("method", string(s.Method)).
			Int("attempts", attempts).
			Msg("Submission accepted")
		msg := ""
		if resp != nil {
			msg = resp.Message
		}
		return Result{Outcome: OutcomeAccepted, Message: msg, Attempts: attempts}

	case errors.Is(err, ErrRejected):
		msg := err.Error()
		var rej *RejectedError
		if errors.As(err, &rej) && rej.Message != "" {
			msg = rej.Message
		}
		g.log.Warn().
			Str("exam_id", s.ExamID).
			Str("user_id", s.UserID).
			Str("reason", msg).
			Msg("Submission rejected")
		return Result{Outcome: OutcomeRejected, Message: msg, Attempts: attempts, Err: err}

	default:
		if !errors.Is(err, ErrUnreachable) {
			err = fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		g.log.Error().Err(err).
			Str("exam_id", s.ExamID).
			Str("user_id", s.UserID).
			Int("attempts", attempts).
			Msg("Submission service unreachable, giving up")
		return Result{Outcome: OutcomeUnreachable, Message: "submission service unreachable", Attempts: attempts, Err: err}
	}
}
