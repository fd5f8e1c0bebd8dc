package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionWorker consumes persist_submissions_queue and UPSERTs submissions to PostgreSQL.
type SubmissionWorker struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	log        zerolog.Logger
	retryDelay time.Duration
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool:       pool,
		rdb:        rdb,
		log:        log.With().Str("component", "submission_worker").Logger(),
		retryDelay: 5 * time.Second,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error, sleeping 3s")
			time.Sleep(3 * time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var sub model.Submission
	if err := json.Unmarshal([]byte(result[1]), &sub); err != nil {
		// Malformed JSON cannot succeed on retry.
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed submission")
		return
	}

	if err := w.persist(ctx, &sub); err != nil {
		w.log.Error().Err(err).
			Str("user_id", sub.UserID).
			Str("exam_id", sub.ExamID).
			Msg("Persist error, requeueing")
		w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistSubmissionsQueue, result[1])
		select {
		case <-time.After(w.retryDelay):
		case <-ctx.Done():
		}
	}
}

// persist is idempotent; the first submission for (exam, user) wins.
func (w *SubmissionWorker) persist(ctx context.Context, s *model.Submission) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return err
	}

	var startedAt *time.Time
	if !s.StartedAt.IsZero() {
		startedAt = &s.StartedAt
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO exam_submissions
		   (session_id, exam_id, user_id, answers, method, started_at, submitted_at, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING`,
		s.SessionID, s.ExamID, s.UserID, answers, string(s.Method), startedAt, s.SubmittedAt, s.DurationSeconds,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSubmissionsQueue).Result()
		if err != nil {
			break
		}

		var sub model.Submission
		if err := json.Unmarshal([]byte(result), &sub); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &sub); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistSubmissionsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
