// Package checkpoint persists in-progress answers so a crashed or restarted
// client resumes with the same answers and the same deadline.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

var (
	// ErrNotFound is returned by Load/Get when no checkpoint exists for (user, exam).
	ErrNotFound = errors.New("checkpoint not found")
	// ErrLeaseHeld is returned by Claim when another holder owns a live lease.
	ErrLeaseHeld = errors.New("session lease held by another client")
)

// Lease marks the client currently running the session for (user, exam).
type Lease struct {
	UserID    string    `json:"user_id"`
	ExamID    string    `json:"exam_id"`
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the durable local store keyed by (userID, examID).
// Put must be atomic: a reader observes either the previous record or the new one.
type Store interface {
	Put(ctx context.Context, cp *model.Checkpoint) error
	Get(ctx context.Context, userID, examID string) (*model.Checkpoint, error)
	Delete(ctx context.Context, userID, examID string) error
	// MarkSubmitted records the Submitted marker and removes the checkpoint.
	// The marker is durable before the checkpoint disappears.
	MarkSubmitted(ctx context.Context, userID, examID string, at time.Time) error
	IsSubmitted(ctx context.Context, userID, examID string) (bool, error)
	// Claim takes the lease when it is free, expired at now, or already owned
	// by l.Holder (a renewal). Otherwise it returns ErrLeaseHeld.
	Claim(ctx context.Context, l *Lease, now time.Time) error
	// Release drops the lease if holder owns it. An empty holder drops any lease.
	Release(ctx context.Context, userID, examID, holder string) error
}

// WriteError wraps a failed checkpoint write. It is recoverable: the caller
// keeps its in-memory state and retries on the next cadence tick.
type WriteError struct {
	UserID string
	ExamID string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("checkpoint write for user %s exam %s: %v", e.UserID, e.ExamID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
