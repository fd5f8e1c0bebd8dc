// Package session implements the exam session state machine: navigation,
// answer capture, checkpoint cadence, the deadline and submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/answer"
	"github.com/stemsi/exstem-session/internal/checkpoint"
	"github.com/stemsi/exstem-session/internal/content"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/submission"
	"github.com/stemsi/exstem-session/internal/timer"
)

// Submitter delivers a payload; *submission.Gateway satisfies it.
// It must be safe to call from a goroutine other than the Controller's.
type Submitter interface {
	Submit(ctx context.Context, s *model.Submission) submission.Result
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Content     content.Provider
	Checkpoints *checkpoint.Manager
	Gateway     Submitter
	Clock       clockwork.Clock
	Listener    Listener
	Log         zerolog.Logger
	// Holder names this client in the session lease. Defaults to a random id.
	Holder string
	// Takeover drops a lease left by another client before claiming.
	Takeover bool
}

type inflight struct {
	payload *model.Submission
	from    model.SessionStatus
}

// Controller owns one ExamSession. It is not safe for concurrent use; confine
// it to one goroutine (see Runner).
type Controller struct {
	content     content.Provider
	checkpoints *checkpoint.Manager
	gateway     Submitter
	clock       clockwork.Clock
	listener    Listener
	log         zerolog.Logger

	status   model.SessionStatus
	session  *model.ExamSession
	exam     *model.ExamContent
	identity model.Identity
	pending  *inflight
	// dirty is set when answers changed since the last successful checkpoint.
	dirty bool

	holder   string
	takeover bool
	lease    *leaseRef
}

type leaseRef struct {
	userID    string
	examID    string
	renewedAt time.Time
}

// NewController creates a Controller in the Initializing state.
func NewController(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}
	if deps.Holder == "" {
		deps.Holder = uuid.NewString()
	}
	return &Controller{
		content:     deps.Content,
		checkpoints: deps.Checkpoints,
		gateway:     deps.Gateway,
		clock:       deps.Clock,
		listener:    deps.Listener,
		log:         deps.Log.With().Str("component", "session_controller").Logger(),
		status:      model.SessionStatusInitializing,
		holder:      deps.Holder,
		takeover:    deps.Takeover,
	}
}

// Start loads the exam, recovers a checkpoint if one exists and activates the
// session. A recovered session keeps its original startedAt, so the deadline
// never moves across restarts. Only one client may run a (user, exam) session;
// while another holds the lease Start returns ErrActiveElsewhere.
func (c *Controller) Start(ctx context.Context, examID string, id model.Identity) error {
	switch c.status {
	case model.SessionStatusInitializing:
	case model.SessionStatusAbandoned:
		return ErrNotActive
	default:
		return ErrAlreadyStarted
	}

	submitted, err := c.checkpoints.Submitted(ctx, id.UserID, examID)
	if err != nil {
		return fmt.Errorf("check submitted marker: %w", err)
	}
	if submitted {
		return ErrAlreadySubmitted
	}

	if err := c.claimLease(ctx, id.UserID, examID); err != nil {
		return err
	}

	exam, err := c.content.Load(ctx, examID)
	if err != nil {
		c.log.Error().Err(err).Str("exam_id", examID).Msg("Failed to load exam content")
		c.releaseLease(ctx)
		return &ContentLoadError{ExamID: examID, Err: err}
	}

	s := &model.ExamSession{
		UserID:  id.UserID,
		ExamID:  examID,
		Status:  model.SessionStatusActive,
		Answers: make(map[string]model.Answer),
	}

	cp, err := c.checkpoints.Load(ctx, id.UserID, examID)
	recovered := err == nil
	switch {
	case recovered:
		s.ID = cp.SessionID
		s.StartedAt = cp.StartedAt
		s.Answers = cp.Answers
		if cp.CurrentQuestionIndex >= 0 && cp.CurrentQuestionIndex < len(exam.Questions) {
			s.CurrentQuestionIndex = cp.CurrentQuestionIndex
		}
	case errors.Is(err, checkpoint.ErrNotFound):
		s.ID = uuid.New()
		s.StartedAt = c.clock.Now()
	default:
		// An unreadable checkpoint may still hold answers; refuse to overwrite it.
		c.releaseLease(ctx)
		return fmt.Errorf("recover checkpoint: %w", err)
	}
	s.Deadline = s.StartedAt.Add(exam.Duration())

	c.exam = exam
	c.session = s
	c.identity = id
	c.setStatus(model.SessionStatusActive)

	c.log.Info().
		Str("session_id", s.ID.String()).
		Str("exam_id", examID).
		Str("user_id", id.UserID).
		Bool("recovered", recovered).
		Int("answers", len(s.Answers)).
		Time("deadline", s.Deadline).
		Msg("Exam session active")

	if !recovered {
		// Persist startedAt right away so a crash before the first cadence
		// cannot restart the clock.
		c.dirty = true
		c.saveCheckpoint(ctx)
	}
	return nil
}

// Navigate moves to the question at index, persisting answers first.
func (c *Controller) Navigate(ctx context.Context, index int) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if index < 0 || index >= len(c.exam.Questions) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(c.exam.Questions))
	}

	c.saveCheckpoint(ctx)
	c.session.CurrentQuestionIndex = index
	return nil
}

// Step moves delta questions forward (or backward when negative).
func (c *Controller) Step(ctx context.Context, delta int) error {
	if c.session == nil {
		return ErrNotActive
	}
	return c.Navigate(ctx, c.session.CurrentQuestionIndex+delta)
}

// RecordAnswer normalizes raw for the question and stores it. On a
// *answer.ValidationError the previously stored answer is kept.
func (c *Controller) RecordAnswer(questionID string, raw any) (model.Answer, error) {
	if err := c.requireActive(); err != nil {
		return model.Answer{}, err
	}
	q, ok := c.exam.QuestionByID(questionID)
	if !ok {
		return model.Answer{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}

	a, err := answer.Normalize(q, raw)
	if err != nil {
		c.log.Debug().Err(err).Str("question_id", questionID).Msg("Answer rejected")
		return c.Answer(questionID), err
	}

	prev, had := c.session.Answers[questionID]
	if had && prev.Equal(a) {
		return a, nil
	}
	c.session.Answers[questionID] = a
	c.dirty = true
	c.listener.OnAnswerChanged(questionID, a)
	return a, nil
}

// Submit is the manual submission. confirmed must carry the user's explicit
// confirmation from the UI.
func (c *Controller) Submit(ctx context.Context, confirmed bool) (SubmitResult, error) {
	if !confirmed {
		return SubmitResult{}, ErrNotConfirmed
	}
	return c.submit(ctx, model.SubmitMethodManual)
}

// ForceSubmit submits because the deadline passed.
func (c *Controller) ForceSubmit(ctx context.Context) (SubmitResult, error) {
	return c.submit(ctx, model.SubmitMethodForced)
}

func (c *Controller) submit(ctx context.Context, method model.SubmitMethod) (SubmitResult, error) {
	payload, err := c.BeginSubmit(ctx, method)
	if err != nil {
		return SubmitResult{}, err
	}
	res := c.deliver(ctx, payload)
	return c.CompleteSubmit(ctx, res), nil
}

// BeginSubmit moves the session into Submitting and returns the payload to
// deliver. Exactly one submission can be in flight; a trigger that observes
// Submitting or Submitted gets ErrSubmitInFlight or ErrAlreadySubmitted and
// must treat it as a no-op.
func (c *Controller) BeginSubmit(ctx context.Context, method model.SubmitMethod) (*model.Submission, error) {
	switch c.status {
	case model.SessionStatusSubmitting:
		return nil, ErrSubmitInFlight
	case model.SessionStatusSubmitted:
		return nil, ErrAlreadySubmitted
	case model.SessionStatusActive:
	case model.SessionStatusExpired:
		// Only a person may retry after the deadline.
		if method != model.SubmitMethodManual {
			return nil, ErrNotActive
		}
	default:
		return nil, ErrNotActive
	}

	c.saveCheckpoint(ctx)

	now := c.clock.Now()
	elapsed := now.Sub(c.session.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := c.exam.Duration(); elapsed > limit {
		elapsed = limit
	}

	payload := &model.Submission{
		SessionID:       c.session.ID,
		ExamID:          c.session.ExamID,
		UserID:          c.session.UserID,
		Answers:         answer.Flatten(c.exam, c.session.Answers),
		StartedAt:       c.session.StartedAt,
		SubmittedAt:     now,
		DurationSeconds: int64(elapsed / time.Second),
		Method:          method,
	}

	c.pending = &inflight{payload: payload, from: c.status}
	c.setStatus(model.SessionStatusSubmitting)

	c.log.Info().
		Str("session_id", c.session.ID.String()).
		Str("method", string(method)).
		Int("answers", len(payload.Answers)).
		Msg("Submitting exam")
	return payload, nil
}

// deliver calls the gateway. It touches no session state and may run on
// another goroutine.
func (c *Controller) deliver(ctx context.Context, payload *model.Submission) submission.Result {
	return c.gateway.Submit(ctx, payload)
}

// CompleteSubmit applies the gateway result to the in-flight submission.
// Accepted: Submitted, marker written, checkpoint cleared. Otherwise the
// checkpoint is retained and the session returns to Active (manual from
// Active) or Expired (forced, or a retry after the deadline).
func (c *Controller) CompleteSubmit(ctx context.Context, res submission.Result) SubmitResult {
	p := c.pending
	if p == nil || c.status != model.SessionStatusSubmitting {
		c.log.Warn().Str("status", string(c.status)).Msg("Submission result without a submission in flight")
		return SubmitResult{Outcome: res.Outcome, Message: res.Message, Err: res.Err, Status: c.status}
	}
	c.pending = nil

	out := SubmitResult{
		Method:   p.payload.Method,
		Outcome:  res.Outcome,
		Message:  res.Message,
		Attempts: res.Attempts,
		Err:      res.Err,
	}

	if res.Accepted() {
		c.setStatus(model.SessionStatusSubmitted)
		if err := c.checkpoints.Complete(ctx, c.session.UserID, c.session.ExamID, p.payload.SubmittedAt); err != nil {
			// The hub is idempotent on (exam, user); a stale checkpoint only
			// leads to a duplicate that it will acknowledge.
			c.log.Error().Err(err).Msg("Failed to record submitted marker")
		}
		c.dirty = false
		c.releaseLease(ctx)
	} else {
		next := model.SessionStatusActive
		if p.payload.Method == model.SubmitMethodForced || p.from == model.SessionStatusExpired {
			next = model.SessionStatusExpired
		}
		c.setStatus(next)
		c.log.Warn().
			Err(res.Err).
			Str("outcome", string(res.Outcome)).
			Str("status", string(next)).
			Msg("Submission failed, checkpoint retained")
	}

	out.Status = c.status
	c.listener.OnSubmitResult(out)
	return out
}

// Tick renews the lease, reports the remaining time and, when the deadline
// has passed while Active, runs the forced submission.
func (c *Controller) Tick(ctx context.Context) (time.Duration, error) {
	if err := c.RenewLease(ctx); errors.Is(err, ErrActiveElsewhere) {
		return c.Remaining(), err
	}
	remaining, due := c.countdown()
	if !due {
		return remaining, nil
	}
	_, err := c.ForceSubmit(ctx)
	return remaining, err
}

// countdown emits OnTick and reports whether a forced submission is due.
func (c *Controller) countdown() (time.Duration, bool) {
	if c.session == nil {
		return 0, false
	}
	remaining := c.Remaining()
	c.listener.OnTick(remaining)
	return remaining, remaining == 0 && c.status == model.SessionStatusActive
}

// FlushCheckpoint writes a checkpoint regardless of activity. Write errors
// are logged and returned; they never change session state.
func (c *Controller) FlushCheckpoint(ctx context.Context) error {
	switch c.status {
	case model.SessionStatusActive, model.SessionStatusExpired, model.SessionStatusSubmitting:
		return c.saveCheckpoint(ctx)
	}
	return nil
}

// Abandon leaves the session. Before Active nothing is written; afterwards
// the latest answers are checkpointed for recovery.
func (c *Controller) Abandon(ctx context.Context) error {
	switch c.status {
	case model.SessionStatusInitializing:
		c.setStatus(model.SessionStatusAbandoned)
		return nil
	case model.SessionStatusActive, model.SessionStatusExpired:
		err := c.saveCheckpoint(ctx)
		c.setStatus(model.SessionStatusAbandoned)
		c.releaseLease(ctx)
		return err
	case model.SessionStatusSubmitting:
		return ErrSubmitInFlight
	}
	return nil
}

// RenewLease extends the session lease once a third of its TTL has passed.
// A store error is retried on the next tick. Losing the lease to a takeover
// abandons the session without writing, so the new holder's answers stand.
func (c *Controller) RenewLease(ctx context.Context) error {
	if c.lease == nil {
		return nil
	}
	switch c.status {
	case model.SessionStatusActive, model.SessionStatusExpired, model.SessionStatusSubmitting:
	default:
		return nil
	}

	now := c.clock.Now()
	if now.Sub(c.lease.renewedAt) < c.checkpoints.LeaseTTL()/3 {
		return nil
	}

	err := c.checkpoints.Claim(ctx, c.lease.userID, c.lease.examID, c.holder)
	switch {
	case err == nil:
		c.lease.renewedAt = now
		return nil
	case errors.Is(err, checkpoint.ErrLeaseHeld):
		c.log.Error().Err(err).
			Str("session_id", c.session.ID.String()).
			Msg("Session taken over by another client, leaving")
		c.lease = nil
		c.pending = nil
		c.setStatus(model.SessionStatusAbandoned)
		return fmt.Errorf("%w: %v", ErrActiveElsewhere, err)
	default:
		c.log.Warn().Err(err).Msg("Lease renewal failed, will retry")
		return err
	}
}

// ReleaseLease gives up the session lease so another client (or a restart)
// can start at once. It is a no-op when no lease is held.
func (c *Controller) ReleaseLease(ctx context.Context) {
	c.releaseLease(ctx)
}

func (c *Controller) claimLease(ctx context.Context, userID, examID string) error {
	if c.takeover {
		if err := c.checkpoints.Release(ctx, userID, examID, ""); err != nil {
			return err
		}
		c.takeover = false
	}

	if err := c.checkpoints.Claim(ctx, userID, examID, c.holder); err != nil {
		if errors.Is(err, checkpoint.ErrLeaseHeld) {
			c.log.Warn().Err(err).
				Str("user_id", userID).
				Str("exam_id", examID).
				Msg("Session already active on another client")
			return fmt.Errorf("%w: %v", ErrActiveElsewhere, err)
		}
		return err
	}
	c.lease = &leaseRef{userID: userID, examID: examID, renewedAt: c.clock.Now()}
	return nil
}

func (c *Controller) releaseLease(ctx context.Context) {
	if c.lease == nil {
		return
	}
	if err := c.checkpoints.Release(ctx, c.lease.userID, c.lease.examID, c.holder); err != nil {
		// The lease lapses on its own after its TTL.
		c.log.Warn().Err(err).Msg("Failed to release session lease")
	}
	c.lease = nil
}

func (c *Controller) saveCheckpoint(ctx context.Context) error {
	if err := c.checkpoints.Save(ctx, c.session); err != nil {
		c.dirty = true
		return err
	}
	c.dirty = false
	return nil
}

func (c *Controller) requireActive() error {
	switch c.status {
	case model.SessionStatusActive:
		return nil
	case model.SessionStatusSubmitting:
		return ErrSubmitInFlight
	case model.SessionStatusSubmitted:
		return ErrAlreadySubmitted
	}
	return ErrNotActive
}

func (c *Controller) setStatus(to model.SessionStatus) {
	from := c.status
	if from == to {
		return
	}
	c.status = to
	if c.session != nil {
		c.session.Status = to
	}
	c.listener.OnStatusChanged(from, to)
}

// ─── Accessors ──────────────────────────────────────────────────────

// Status returns the current lifecycle state.
func (c *Controller) Status() model.SessionStatus { return c.status }

// Session returns a copy of the session, or nil before Start.
func (c *Controller) Session() *model.ExamSession {
	if c.session == nil {
		return nil
	}
	s := c.session.Snapshot()
	return &s
}

// Exam returns the loaded content, or nil before Start.
func (c *Controller) Exam() *model.ExamContent { return c.exam }

// Identity returns the identity the session runs under.
func (c *Controller) Identity() model.Identity { return c.identity }

// CurrentQuestion returns the question at the current index.
func (c *Controller) CurrentQuestion() (*model.Question, int, bool) {
	if c.session == nil || len(c.exam.Questions) == 0 {
		return nil, 0, false
	}
	i := c.session.CurrentQuestionIndex
	return &c.exam.Questions[i], i, true
}

// Answer returns the stored answer for questionID, or the blank answer for its type.
func (c *Controller) Answer(questionID string) model.Answer {
	if c.session == nil {
		return model.Unanswered()
	}
	if a, ok := c.session.Answers[questionID]; ok {
		return a
	}
	if q, ok := c.exam.QuestionByID(questionID); ok {
		return answer.Blank(q)
	}
	return model.Unanswered()
}

// Remaining returns the time left before the deadline, never negative.
func (c *Controller) Remaining() time.Duration {
	if c.session == nil {
		return 0
	}
	return timer.Remaining(c.session.Deadline, c.clock.Now())
}

// Dirty reports whether answers changed since the last successful checkpoint.
func (c *Controller) Dirty() bool { return c.dirty }
