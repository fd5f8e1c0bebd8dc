package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// PostgresStore keeps checkpoints in PostgreSQL for lab deployments where the
// local disk is not trusted. Schema: internal/database/migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, cp *model.Checkpoint) error {
	record, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	// UPSERT replaces the whole row in one statement.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO exam_checkpoints (user_id, exam_id, session_id, record, saved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, exam_id) DO UPDATE
		 SET session_id = EXCLUDED.session_id, record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`,
		cp.UserID, cp.ExamID, cp.SessionID, record, cp.SavedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, userID, examID string) (*model.Checkpoint, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM exam_checkpoints WHERE user_id = $1 AND exam_id = $2`,
		userID, examID,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(record, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint row: %w", err)
	}
	return &cp, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, examID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM exam_checkpoints WHERE user_id = $1 AND exam_id = $2`, userID, examID)
	return err
}

func (s *PostgresStore) MarkSubmitted(ctx context.Context, userID, examID string, at time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exam_submitted_markers (user_id, exam_id, submitted_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, exam_id) DO UPDATE SET submitted_at = EXCLUDED.submitted_at`,
			userID, examID, at,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM exam_checkpoints WHERE user_id = $1 AND exam_id = $2`, userID, examID)
		return err
	})
}

func (s *PostgresStore) IsSubmitted(ctx context.Context, userID, examID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_submitted_markers WHERE user_id = $1 AND exam_id = $2)`,
		userID, examID,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) Claim(ctx context.Context, l *Lease, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO exam_session_leases (user_id, exam_id, holder, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, exam_id) DO UPDATE
		 SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		 WHERE exam_session_leases.holder = EXCLUDED.holder OR exam_session_leases.expires_at <= $5`,
		l.UserID, l.ExamID, l.Holder, l.ExpiresAt, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseHeld
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, userID, examID, holder string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM exam_session_leases WHERE user_id = $1 AND exam_id = $2 AND ($3 = '' OR holder = $3)`,
		userID, examID, holder)
	return err
}
