package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/submission"
	"github.com/stemsi/exstem-session/internal/timer"
)

// Runner confines a Controller to one goroutine. UI commands, timer ticks,
// checkpoint cadence and submission results are all handled by its loop.
// The gateway call runs off the loop so the countdown keeps going while a
// submission is outstanding.
type Runner struct {
	ctrl  *Controller
	sched *timer.Scheduler
	log   zerolog.Logger

	cmds    chan func(context.Context)
	results chan submission.Result
	done    chan struct{}
}

// NewRunner creates a new Runner. The Controller must already be Active.
func NewRunner(ctrl *Controller, sched *timer.Scheduler, log zerolog.Logger) *Runner {
	return &Runner{
		ctrl:    ctrl,
		sched:   sched,
		log:     log.With().Str("component", "session_runner").Logger(),
		cmds:    make(chan func(context.Context)),
		results: make(chan submission.Result, 1),
		done:    make(chan struct{}),
	}
}

// Run drives the session until it is Submitted or Abandoned, or ctx ends.
// On ctx cancellation the latest answers are checkpointed first.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	r.sched.Start()
	defer r.sched.Stop()

	// Cancelled when the loop exits so an outstanding gateway call stops retrying.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		if r.finished() {
			return nil
		}

		select {
		case <-ctx.Done():
			// Flush with a live context; the parent is already cancelled.
			_ = r.ctrl.FlushCheckpoint(context.WithoutCancel(ctx))
			r.ctrl.ReleaseLease(context.WithoutCancel(ctx))
			r.log.Info().Str("status", string(r.ctrl.Status())).Msg("Session runner stopped")
			return ctx.Err()

		case fn := <-r.cmds:
			fn(loopCtx)

		case <-r.sched.Ticks():
			if err := r.ctrl.RenewLease(loopCtx); errors.Is(err, ErrActiveElsewhere) {
				continue
			}
			if _, due := r.ctrl.countdown(); due {
				if err := r.beginSubmit(loopCtx, model.SubmitMethodForced); err != nil {
					r.log.Debug().Err(err).Msg("Forced submission skipped")
				}
			}

		case <-r.sched.Checkpoints():
			_ = r.ctrl.FlushCheckpoint(loopCtx)

		case res := <-r.results:
			r.ctrl.CompleteSubmit(loopCtx, res)
		}
	}
}

func (r *Runner) finished() bool {
	switch r.ctrl.Status() {
	case model.SessionStatusSubmitted, model.SessionStatusAbandoned:
		return true
	}
	return false
}

// beginSubmit enters Submitting on the loop and hands the payload to a
// goroutine; the result comes back through r.results.
func (r *Runner) beginSubmit(ctx context.Context, method model.SubmitMethod) error {
	payload, err := r.ctrl.BeginSubmit(ctx, method)
	if err != nil {
		return err
	}
	go func() {
		r.results <- r.ctrl.deliver(ctx, payload)
	}()
	return nil
}

// Do runs fn on the loop and waits for its error.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context, c *Controller) error) error {
	errc := make(chan error, 1)
	cmd := func(loopCtx context.Context) {
		errc <- fn(loopCtx, r.ctrl)
	}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestSubmit starts a manual submission without waiting for the gateway.
// The outcome is delivered through Listener.OnSubmitResult.
func (r *Runner) RequestSubmit(ctx context.Context, confirmed bool) error {
	return r.Do(ctx, func(loopCtx context.Context, _ *Controller) error {
		if !confirmed {
			return ErrNotConfirmed
		}
		return r.beginSubmit(loopCtx, model.SubmitMethodManual)
	})
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }
