package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// receiptTTL outlives any exam window; the table row is the permanent record.
const receiptTTL = 30 * 24 * time.Hour

// Receipt is stored per (exam, user) when the first submission is accepted.
type Receipt struct {
	SessionID  uuid.UUID          `json:"session_id"`
	Method     model.SubmitMethod `json:"method"`
	ReceivedAt time.Time          `json:"received_at"`
}

// SubmissionService accepts final submissions and queues them for persistence.
type SubmissionService struct {
	rdb   *redis.Client
	clock clockwork.Clock
	log   zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(rdb *redis.Client, clock clockwork.Clock, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		rdb:   rdb,
		clock: clock,
		log:   log.With().Str("component", "submission_service").Logger(),
	}
}

// Accept records sub on behalf of caller. Students may only submit their own
// work; proctors and admins may deliver operator resubmissions. Only the first
// submission per (exam, user) is queued; later ones succeed with
// MessageAlreadySubmitted.
func (s *SubmissionService) Accept(ctx context.Context, caller model.Identity, examID string, sub *model.Submission) (*model.SubmissionResponse, error) {
	if sub.ExamID != examID {
		return nil, ErrExamMismatch
	}
	if sub.UserID != caller.UserID && !caller.Role.Privileged() {
		return nil, ErrUserMismatch
	}

	receipt, err := json.Marshal(Receipt{
		SessionID:  sub.SessionID,
		Method:     sub.Method,
		ReceivedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}

	key := config.CacheKey.SubmissionReceiptKey(examID, sub.UserID)
	fresh, err := s.rdb.SetNX(ctx, key, receipt, receiptTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim receipt: %w", err)
	}
	if !fresh {
		s.log.Info().
			Str("exam_id", examID).
			Str("user_id", sub.UserID).
			Str("session_id", sub.SessionID.String()).
			Msg("Duplicate submission acknowledged")
		return &model.SubmissionResponse{Success: true, Message: MessageAlreadySubmitted}, nil
	}

	data, err := json.Marshal(sub)
	if err != nil {
		s.rdb.Del(context.WithoutCancel(ctx), key)
		return nil, fmt.Errorf("marshal submission: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, data).Err(); err != nil {
		// Release the claim so the client's retry is not mistaken for a duplicate.
		s.rdb.Del(context.WithoutCancel(ctx), key)
		return nil, fmt.Errorf("queue submission: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID).
		Str("user_id", sub.UserID).
		Str("method", string(sub.Method)).
		Int("answers", len(sub.Answers)).
		Msg("Submission queued")
	return &model.SubmissionResponse{Success: true, Message: "submission received"}, nil
}

// Receipt returns the stored receipt for (examID, userID).
func (s *SubmissionService) Receipt(ctx context.Context, examID, userID string) (*Receipt, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SubmissionReceiptKey(examID, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}
