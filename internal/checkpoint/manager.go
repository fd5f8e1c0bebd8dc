package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	DefaultWriteTimeout = 3 * time.Second
	DefaultLeaseTTL     = 45 * time.Second
)

// Options bounds the Manager's store calls. Zero values take the defaults.
type Options struct {
	// WriteTimeout caps every Store call so a stalled backend cannot block the session loop.
	WriteTimeout time.Duration
	// LeaseTTL is how long a claim stays live without renewal.
	LeaseTTL time.Duration
}

// Manager performs save/load/clear of checkpoints on top of a Store.
type Manager struct {
	store Store
	clock clockwork.Clock
	opts  Options
	log   zerolog.Logger
}

// NewManager creates a new Manager.
func NewManager(store Store, clock clockwork.Clock, opts Options, log zerolog.Logger) *Manager {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	return &Manager{
		store: store,
		clock: clock,
		opts:  opts,
		log:   log.With().Str("component", "checkpoint_manager").Logger(),
	}
}

// LeaseTTL returns the configured lease lifetime.
func (m *Manager) LeaseTTL() time.Duration { return m.opts.LeaseTTL }

func (m *Manager) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opts.WriteTimeout)
}

// Save snapshots the session's answers, start time and position.
// A failure is logged and returned as *WriteError; it never mutates the session.
func (m *Manager) Save(ctx context.Context, s *model.ExamSession) error {
	answers := make(map[string]model.Answer, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}

	cp := &model.Checkpoint{
		SessionID:            s.ID,
		UserID:               s.UserID,
		ExamID:               s.ExamID,
		StartedAt:            s.StartedAt,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		Answers:              answers,
		SavedAt:              m.clock.Now(),
	}

	ctx, cancel := m.bounded(ctx)
	defer cancel()
	if err := m.store.Put(ctx, cp); err != nil {
		m.log.Error().Err(err).
			Str("user_id", s.UserID).
			Str("exam_id", s.ExamID).
			Msg("Checkpoint write failed, will retry on next cadence")
		return &WriteError{UserID: s.UserID, ExamID: s.ExamID, Err: err}
	}

	m.log.Debug().
		Str("session_id", s.ID.String()).
		Int("answers", len(answers)).
		Msg("Checkpoint saved")
	return nil
}

// Load returns the checkpoint for (userID, examID) or ErrNotFound.
func (m *Manager) Load(ctx context.Context, userID, examID string) (*model.Checkpoint, error) {
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	cp, err := m.store.Get(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.Answers == nil {
		cp.Answers = make(map[string]model.Answer)
	}
	return cp, nil
}

// Clear deletes the checkpoint for (userID, examID). Missing checkpoints are not an error.
func (m *Manager) Clear(ctx context.Context, userID, examID string) error {
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	if err := m.store.Delete(ctx, userID, examID); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Complete writes the Submitted marker and clears the checkpoint after a confirmed submission.
func (m *Manager) Complete(ctx context.Context, userID, examID string, submittedAt time.Time) error {
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	if err := m.store.MarkSubmitted(ctx, userID, examID, submittedAt); err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	m.log.Info().
		Str("user_id", userID).
		Str("exam_id", examID).
		Msg("Submission confirmed, checkpoint cleared")
	return nil
}

// Submitted reports whether a Submitted marker exists for (userID, examID).
func (m *Manager) Submitted(ctx context.Context, userID, examID string) (bool, error) {
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	ok, err := m.store.IsSubmitted(ctx, userID, examID)
	if err != nil {
		return false, fmt.Errorf("check submitted marker: %w", err)
	}
	return ok, nil
}

// Claim takes or renews the lease for holder, valid for LeaseTTL from now.
// It returns an error wrapping ErrLeaseHeld when another client owns the session.
func (m *Manager) Claim(ctx context.Context, userID, examID, holder string) error {
	ctx, cancel := m.bounded(ctx)
	defer cancel()

	now := m.clock.Now()
	lease := &Lease{UserID: userID, ExamID: examID, Holder: holder, ExpiresAt: now.Add(m.opts.LeaseTTL)}
	if err := m.store.Claim(ctx, lease, now); err != nil {
		return fmt.Errorf("claim session lease: %w", err)
	}
	return nil
}

// Release drops holder's lease. An empty holder drops whichever lease exists.
func (m *Manager) Release(ctx context.Context, userID, examID, holder string) error {
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	if err := m.store.Release(ctx, userID, examID, holder); err != nil {
		return fmt.Errorf("release session lease: %w", err)
	}
	if holder == "" {
		m.log.Warn().Str("user_id", userID).Str("exam_id", examID).Msg("Session lease dropped for takeover")
	}
	return nil
}
