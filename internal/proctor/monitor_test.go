package proctor

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type fakeShell struct {
	exclusive  bool
	suppressed []string
	refocused  int
	failApply  bool
}

func (s *fakeShell) SetExclusive(on bool) error {
	if s.failApply && on {
		return errors.New("window manager refused")
	}
	s.exclusive = on
	return nil
}

func (s *fakeShell) SuppressShortcuts(sc []string) error {
	s.suppressed = sc
	return nil
}

func (s *fakeShell) Refocus() error {
	s.refocused++
	return nil
}

type collect struct {
	mu     sync.Mutex
	events []model.ProctorEvent
}

func (c *collect) Report(ev model.ProctorEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

var (
	student = model.Identity{UserID: "stu-1", Role: model.RoleStudent}
	proctor = model.Identity{UserID: "prc-1", Role: model.RoleProctor}
)

func engaged(t *testing.T, hash string) (*Monitor, *fakeShell, *collect) {
	t.Helper()
	shell := &fakeShell{}
	rep := &collect{}
	m := NewMonitor(shell, rep, clockwork.NewFakeClock(), hash, zerolog.Nop())
	if err := m.Engage(student, "e1", uuid.New()); err != nil {
		t.Fatalf("engage: %v", err)
	}
	return m, shell, rep
}

func TestEngageAppliesMeasures(t *testing.T) {
	m, shell, rep := engaged(t, "")
	if !shell.exclusive || len(shell.suppressed) != len(KnownShortcuts) {
		t.Fatalf("measures not applied: %+v", shell)
	}
	if err := m.Engage(student, "e1", uuid.New()); !errors.Is(err, ErrAlreadyEngaged) {
		t.Fatalf("expected ErrAlreadyEngaged, got %v", err)
	}
	if len(rep.events) != 1 || rep.events[0].Kind != model.ProctorEventEngaged || rep.events[0].UserID != "stu-1" {
		t.Fatalf("unexpected events %+v", rep.events)
	}
}

func TestEngageDegradedStillEngages(t *testing.T) {
	shell := &fakeShell{failApply: true}
	m := NewMonitor(shell, nil, clockwork.NewFakeClock(), "", zerolog.Nop())
	if err := m.Engage(student, "e1", uuid.New()); err == nil {
		t.Fatal("expected shell error to be reported")
	}
	if !m.Engaged() {
		t.Fatal("monitor must stay engaged when the shell is degraded")
	}
}

func TestFocusEventsAreFlagOnly(t *testing.T) {
	m, shell, _ := engaged(t, "")

	m.FocusLost()
	m.FocusLost() // duplicate loss without regain counts once
	m.FocusGained()
	m.FocusLost()
	m.ShortcutBlocked("Ctrl+C")

	f := m.Flags()
	if f.FocusLosses != 2 || f.ShortcutsBlocked != 1 || f.Overridden {
		t.Fatalf("unexpected flags %+v", f)
	}
	if shell.refocused != 2 {
		t.Fatalf("expected a refocus per loss, got %d", shell.refocused)
	}
	if !m.Engaged() {
		t.Fatal("focus loss must not disengage the monitor")
	}

	kinds := []model.ProctorEventKind{}
	for _, ev := range m.Events() {
		kinds = append(kinds, ev.Kind)
	}
	want := []model.ProctorEventKind{
		model.ProctorEventEngaged, model.ProctorEventFocusLost, model.ProctorEventFocusGained,
		model.ProctorEventFocusLost, model.ProctorEventShortcutBlocked,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestOverrideRequiresPrivilege(t *testing.T) {
	m, shell, _ := engaged(t, "")

	if err := m.Override(student, ""); !errors.Is(err, ErrNotPrivileged) {
		t.Fatalf("expected ErrNotPrivileged, got %v", err)
	}
	if !m.Engaged() || !shell.exclusive {
		t.Fatal("denied override must leave measures in place")
	}

	if err := m.Override(proctor, ""); err != nil {
		t.Fatalf("proctor override: %v", err)
	}
	if m.Engaged() || shell.exclusive || len(shell.suppressed) != 0 {
		t.Fatalf("override must release measures: %+v", shell)
	}
	if !m.Flags().Overridden {
		t.Fatal("expected overridden flag")
	}
	if err := m.Override(proctor, ""); !errors.Is(err, ErrNotEngaged) {
		t.Fatalf("expected ErrNotEngaged after release, got %v", err)
	}
}

func TestOverridePassphrase(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	m, _, _ := engaged(t, string(hash))

	if err := m.Override(proctor, "wrong"); !errors.Is(err, ErrBadPassphrase) {
		t.Fatalf("expected ErrBadPassphrase, got %v", err)
	}
	if err := m.Override(proctor, "open sesame"); err != nil {
		t.Fatalf("override: %v", err)
	}
}
