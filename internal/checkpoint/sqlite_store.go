package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// SQLiteStore keeps checkpoints in a local SQLite database (modernc driver).
// Each record is a single-row upsert, which SQLite applies atomically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a database opened with database.OpenSQLite.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Put(ctx context.Context, cp *model.Checkpoint) error {
	record, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (user_id, exam_id, session_id, record, saved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, exam_id) DO UPDATE
		 SET session_id = excluded.session_id, record = excluded.record, saved_at = excluded.saved_at`,
		cp.UserID, cp.ExamID, cp.SessionID.String(), string(record), cp.SavedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, userID, examID string) (*model.Checkpoint, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM checkpoints WHERE user_id = ? AND exam_id = ?`,
		userID, examID,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(record), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint row: %w", err)
	}
	return &cp, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, examID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE user_id = ? AND exam_id = ?`, userID, examID)
	return err
}

func (s *SQLiteStore) MarkSubmitted(ctx context.Context, userID, examID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO submitted_markers (user_id, exam_id, submitted_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, exam_id) DO UPDATE SET submitted_at = excluded.submitted_at`,
		userID, examID, at.UnixMilli(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE user_id = ? AND exam_id = ?`, userID, examID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) IsSubmitted(ctx context.Context, userID, examID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM submitted_markers WHERE user_id = ? AND exam_id = ?`, userID, examID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Claim upserts the lease row; the conditional update leaves a live lease of
// another holder untouched and reports zero affected rows.
func (s *SQLiteStore) Claim(ctx context.Context, l *Lease, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO session_leases (user_id, exam_id, holder, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, exam_id) DO UPDATE
		 SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE session_leases.holder = excluded.holder OR session_leases.expires_at <= ?`,
		l.UserID, l.ExamID, l.Holder, l.ExpiresAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

func (s *SQLiteStore) Release(ctx context.Context, userID, examID, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_leases WHERE user_id = ? AND exam_id = ? AND (? = '' OR holder = ?)`,
		userID, examID, holder, holder)
	return err
}
