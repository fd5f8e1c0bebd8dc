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
	"github.com/stemsi/exstem-session/internal/model"
)

// Resubmit delivers a retained checkpoint on behalf of an operator, without
// starting a session. exam may be nil when the paper is unavailable; only
// recorded answers are sent then. It holds the session lease while sending,
// so it is refused with ErrActiveElsewhere while a client runs the session.
func Resubmit(
	ctx context.Context,
	mgr *checkpoint.Manager,
	gw Submitter,
	clock clockwork.Clock,
	log zerolog.Logger,
	userID, examID string,
	exam *model.ExamContent,
) (SubmitResult, error) {
	submitted, err := mgr.Submitted(ctx, userID, examID)
	if err != nil {
		return SubmitResult{}, err
	}
	if submitted {
		return SubmitResult{}, ErrAlreadySubmitted
	}

	holder := "operator-" + uuid.NewString()
	if err := mgr.Claim(ctx, userID, examID, holder); err != nil {
		if errors.Is(err, checkpoint.ErrLeaseHeld) {
			return SubmitResult{}, fmt.Errorf("%w: %v", ErrActiveElsewhere, err)
		}
		return SubmitResult{}, err
	}
	defer func() {
		if err := mgr.Release(context.WithoutCancel(ctx), userID, examID, holder); err != nil {
			log.Warn().Err(err).Msg("Failed to release session lease")
		}
	}()

	cp, err := mgr.Load(ctx, userID, examID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load retained checkpoint: %w", err)
	}

	now := clock.Now()
	answers := answer.FlattenRecorded(cp.Answers)
	// Best estimate of time spent: the last checkpoint is the last sign of activity.
	elapsed := cp.SavedAt.Sub(cp.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if exam != nil {
		answers = answer.Flatten(exam, cp.Answers)
		if limit := exam.Duration(); elapsed > limit {
			elapsed = limit
		}
	}

	payload := &model.Submission{
		SessionID:       cp.SessionID,
		ExamID:          examID,
		UserID:          userID,
		Answers:         answers,
		StartedAt:       cp.StartedAt,
		SubmittedAt:     now,
		DurationSeconds: int64(elapsed / time.Second),
		Method:          model.SubmitMethodOperator,
	}

	log.Info().
		Str("session_id", cp.SessionID.String()).
		Str("exam_id", examID).
		Str("user_id", userID).
		Int("answers", len(answers)).
		Msg("Operator resubmission")

	res := gw.Submit(ctx, payload)
	out := SubmitResult{
		Method:   model.SubmitMethodOperator,
		Outcome:  res.Outcome,
		Message:  res.Message,
		Attempts: res.Attempts,
		Err:      res.Err,
		Status:   model.SessionStatusExpired,
	}
	if res.Accepted() {
		out.Status = model.SessionStatusSubmitted
		if err := mgr.Complete(ctx, userID, examID, now); err != nil {
			return out, fmt.Errorf("record submitted marker: %w", err)
		}
	}
	return out, nil
}
