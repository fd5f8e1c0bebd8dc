// Package proctor applies best-effort integrity measures while a session is
// active: exclusive presentation, shortcut suppression and focus logging.
//
// It is a deterrent, not a sandbox. A user with OS-level access can always
// leave the exam context; the monitor only makes that visible to reviewers.
package proctor

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotEngaged     = errors.New("proctoring is not engaged")
	ErrNotPrivileged  = errors.New("override requires a proctor or admin")
	ErrBadPassphrase  = errors.New("override passphrase mismatch")
	ErrAlreadyEngaged = errors.New("proctoring already engaged")
)

// KnownShortcuts are the context-switch shortcuts a desktop shell should suppress.
var KnownShortcuts = []string{
	"Alt+Tab",
	"Alt+F4",
	"Ctrl+Alt+Delete",
	"Ctrl+Shift+Escape",
	"ContextMenu",
}

// Shell is the host UI the monitor drives.
type Shell interface {
	// SetExclusive toggles full-screen/topmost presentation.
	SetExclusive(on bool) error
	// SuppressShortcuts blocks the given shortcuts; an empty list releases them.
	SuppressShortcuts(shortcuts []string) error
	// Refocus brings the exam back to the foreground.
	Refocus() error
}

// Reporter receives every recorded event. Report must not block.
type Reporter interface {
	Report(ev model.ProctorEvent)
}

// Flags summarises what happened for human review.
type Flags struct {
	FocusLosses      int  `json:"focus_losses"`
	ShortcutsBlocked int  `json:"shortcuts_blocked"`
	Overridden       bool `json:"overridden"`
}

// Monitor records integrity events. Events are flag-only: none of them
// submits, fails or otherwise changes the session.
type Monitor struct {
	shell        Shell
	reporter     Reporter
	clock        clockwork.Clock
	overrideHash []byte
	log          zerolog.Logger

	mu        sync.Mutex
	engaged   bool
	focused   bool
	userID    string
	examID    string
	sessionID uuid.UUID
	events    []model.ProctorEvent
	flags     Flags
}

// NewMonitor creates a new Monitor. overrideHash is a bcrypt hash; when empty
// the override only checks the role. reporter may be nil.
func NewMonitor(shell Shell, reporter Reporter, clock clockwork.Clock, overrideHash string, log zerolog.Logger) *Monitor {
	return &Monitor{
		shell:        shell,
		reporter:     reporter,
		clock:        clock,
		overrideHash: []byte(overrideHash),
		log:          log.With().Str("component", "proctor_monitor").Logger(),
	}
}

// Engage turns on exclusive presentation and shortcut suppression for the session.
func (m *Monitor) Engage(id model.Identity, examID string, sessionID uuid.UUID) error {
	m.mu.Lock()
	if m.engaged {
		m.mu.Unlock()
		return ErrAlreadyEngaged
	}
	m.engaged = true
	m.focused = true
	m.userID = id.UserID
	m.examID = examID
	m.sessionID = sessionID
	m.mu.Unlock()

	var errs []error
	if err := m.shell.SetExclusive(true); err != nil {
		errs = append(errs, err)
	}
	if err := m.shell.SuppressShortcuts(KnownShortcuts); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		// Degraded but not fatal.
		m.log.Warn().Err(err).Msg("Shell could not apply every proctoring measure")
	}

	m.record(model.ProctorEventEngaged, "")
	return err
}

// Release undoes Engage. Safe to call when not engaged.
func (m *Monitor) Release() error {
	m.mu.Lock()
	if !m.engaged {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.record(model.ProctorEventReleased, "")

	m.mu.Lock()
	m.engaged = false
	m.mu.Unlock()

	return errors.Join(
		m.shell.SuppressShortcuts(nil),
		m.shell.SetExclusive(false),
	)
}

// FocusLost flags the loss and asks the shell to take focus back.
func (m *Monitor) FocusLost() {
	m.mu.Lock()
	if !m.engaged || !m.focused {
		m.mu.Unlock()
		return
	}
	m.focused = false
	m.flags.FocusLosses++
	m.mu.Unlock()

	m.record(model.ProctorEventFocusLost, "")
	if err := m.shell.Refocus(); err != nil {
		m.log.Debug().Err(err).Msg("Refocus failed")
	}
}

// FocusGained records the return to the exam.
func (m *Monitor) FocusGained() {
	m.mu.Lock()
	if !m.engaged || m.focused {
		m.mu.Unlock()
		return
	}
	m.focused = true
	m.mu.Unlock()

	m.record(model.ProctorEventFocusGained, "")
}

// ShortcutBlocked records a suppressed shortcut.
func (m *Monitor) ShortcutBlocked(name string) {
	m.mu.Lock()
	if !m.engaged {
		m.mu.Unlock()
		return
	}
	m.flags.ShortcutsBlocked++
	m.mu.Unlock()

	m.record(model.ProctorEventShortcutBlocked, name)
}

// Override releases the lock-down for diagnostics. Only proctors and admins
// may use it, and the passphrase must match when a hash is configured.
func (m *Monitor) Override(id model.Identity, passphrase string) error {
	m.mu.Lock()
	engaged := m.engaged
	m.mu.Unlock()
	if !engaged {
		return ErrNotEngaged
	}

	if !id.Role.Privileged() {
		m.record(model.ProctorEventOverrideDenied, "role="+string(id.Role))
		return ErrNotPrivileged
	}
	if len(m.overrideHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(m.overrideHash, []byte(passphrase)); err != nil {
			m.record(model.ProctorEventOverrideDenied, "by="+id.UserID)
			return ErrBadPassphrase
		}
	}

	m.mu.Lock()
	m.flags.Overridden = true
	m.mu.Unlock()

	m.record(model.ProctorEventOverride, "by="+id.UserID)
	m.log.Warn().Str("by", id.UserID).Str("role", string(id.Role)).Msg("Proctoring overridden")
	return m.Release()
}

// Events returns a copy of the integrity log.
func (m *Monitor) Events() []model.ProctorEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ProctorEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Flags returns the review summary.
func (m *Monitor) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// Engaged reports whether lock-down is active.
func (m *Monitor) Engaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engaged
}

func (m *Monitor) record(kind model.ProctorEventKind, detail string) {
	m.mu.Lock()
	ev := model.ProctorEvent{
		SessionID:  m.sessionID,
		ExamID:     m.examID,
		UserID:     m.userID,
		Kind:       kind,
		Detail:     detail,
		RecordedAt: m.clock.Now(),
	}
	m.events = append(m.events, ev)
	m.mu.Unlock()

	m.log.Info().
		Str("kind", string(kind)).
		Str("detail", detail).
		Str("user_id", ev.UserID).
		Str("exam_id", ev.ExamID).
		Msg("Proctor event")

	if m.reporter != nil {
		m.reporter.Report(ev)
	}
}
