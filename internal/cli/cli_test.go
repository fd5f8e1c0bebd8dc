package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/checkpoint"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/proctor"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LogLevel:         "debug",
		LogFormat:        "json",
		LogFile:          filepath.Join(dir, "client.log"),
		HubURL:           "http://127.0.0.1:1",
		HubTransport:     "http",
		ContentSource:    "file",
		ContentDir:       dir,
		CheckpointDriver: "file",
		CheckpointDir:    filepath.Join(dir, "checkpoints"),
		JWTSecret:        "test-secret",
		JWTExpiry:        time.Hour,
	}
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedCheckpoint(t *testing.T, cfg *config.Config) {
	t.Helper()
	store, err := checkpoint.NewFileStore(cfg.CheckpointDir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	started := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	err = store.Put(context.Background(), &model.Checkpoint{
		SessionID: uuid.New(),
		UserID:    "stu-1",
		ExamID:    "e1",
		StartedAt: started,
		Answers:   map[string]model.Answer{"q1": model.TextAnswer("osmosis")},
		SavedAt:   started.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestCheckpointShowAndClear(t *testing.T) {
	cfg := testConfig(t)
	seedCheckpoint(t, cfg)

	out, err := execute(t, cfg, "checkpoint", "show", "e1", "--user", "stu-1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "osmosis") || !strings.Contains(out, "submitted: false") {
		t.Fatalf("unexpected show output:\n%s", out)
	}

	if _, err := execute(t, cfg, "checkpoint", "clear", "e1", "--user", "stu-1"); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}
	if _, err := execute(t, cfg, "checkpoint", "clear", "e1", "--user", "stu-1", "--yes"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	out, err = execute(t, cfg, "checkpoint", "show", "e1", "--user", "stu-1")
	if err != nil {
		t.Fatalf("show after clear: %v", err)
	}
	if !strings.Contains(out, "no checkpoint") {
		t.Fatalf("expected no checkpoint, got:\n%s", out)
	}
}

func TestCommandsRequireUser(t *testing.T) {
	cfg := testConfig(t)
	for _, args := range [][]string{
		{"checkpoint", "show", "e1"},
		{"checkpoint", "clear", "e1", "--yes"},
		{"resubmit", "e1"},
	} {
		if _, err := execute(t, cfg, args...); !errors.Is(err, errUserRequired) {
			t.Fatalf("%v: expected errUserRequired, got %v", args, err)
		}
	}
}

func TestUnknownDriversAreRejected(t *testing.T) {
	cfg := testConfig(t)
	if _, err := execute(t, cfg, "checkpoint", "show", "e1", "--user", "stu-1", "--checkpoint-driver", "tape"); !errors.Is(err, errUnknownOption) {
		t.Fatalf("expected errUnknownOption for driver, got %v", err)
	}

	d := newDeps(cfg, testLogger())
	defer d.Close()
	cfg.HubTransport = "carrier-pigeon"
	if _, err := d.gateway(); !errors.Is(err, errUnknownOption) {
		t.Fatalf("expected errUnknownOption for transport, got %v", err)
	}
	cfg.ContentSource = "floppy"
	if _, err := d.contentProvider(context.Background()); !errors.Is(err, errUnknownOption) {
		t.Fatalf("expected errUnknownOption for content, got %v", err)
	}
}

func TestIdentityProviderPrefersUserFlag(t *testing.T) {
	cfg := testConfig(t)
	d := newDeps(cfg, testLogger())

	id, err := d.identityProvider("stu-9").Identity(context.Background())
	if err != nil || id.UserID != "stu-9" || id.Role != model.RoleStudent {
		t.Fatalf("expected kiosk identity, got %+v err=%v", id, err)
	}

	token, err := d.authority.Issue(model.Identity{UserID: "stu-3", Role: model.RoleStudent})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	cfg.AuthToken = token
	id, err = d.identityProvider("").Identity(context.Background())
	if err != nil || id.UserID != "stu-3" {
		t.Fatalf("expected token identity, got %+v err=%v", id, err)
	}
}

func TestResubmitRefusesAfterSubmission(t *testing.T) {
	cfg := testConfig(t)
	seedCheckpoint(t, cfg)
	store, err := checkpoint.NewFileStore(cfg.CheckpointDir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if err := store.MarkSubmitted(context.Background(), "stu-1", "e1", time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := execute(t, cfg, "resubmit", "e1", "--user", "stu-1"); err == nil || !strings.Contains(err.Error(), "already submitted") {
		t.Fatalf("expected already submitted, got %v", err)
	}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

type refusingShell struct {
	released bool
}

func (s *refusingShell) SetExclusive(on bool) error {
	if on {
		return errors.New("no window manager")
	}
	s.released = true
	return nil
}

func (s *refusingShell) SuppressShortcuts([]string) error { return nil }
func (s *refusingShell) Refocus() error                   { return nil }

func TestDegradedProctoringDoesNotStopSession(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	shell := &refusingShell{}
	monitor := proctor.NewMonitor(shell, nil, clockwork.NewFakeClock(), "", log)

	release := engageProctoring(monitor, model.Identity{UserID: "stu-1", Role: model.RoleStudent}, "e1", uuid.New(), log)
	if !monitor.Engaged() {
		t.Fatal("session must continue with proctoring engaged but degraded")
	}
	if !strings.Contains(logs.String(), "Proctoring degraded") {
		t.Fatalf("expected degraded warning, got %s", logs.String())
	}

	release()
	if monitor.Engaged() || !shell.released {
		t.Fatalf("release must undo the measures, engaged=%v released=%v", monitor.Engaged(), shell.released)
	}
}

func TestRunRefusesSessionHeldElsewhere(t *testing.T) {
	cfg := testConfig(t)
	store, err := checkpoint.NewFileStore(cfg.CheckpointDir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	now := time.Now()
	lease := &checkpoint.Lease{UserID: "stu-1", ExamID: "e1", Holder: "lab-02/4411", ExpiresAt: now.Add(time.Hour)}
	if err := store.Claim(context.Background(), lease, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err = execute(t, cfg, "run", "e1", "--user", "stu-1")
	if err == nil || !strings.Contains(err.Error(), "--takeover") {
		t.Fatalf("expected refusal pointing at --takeover, got %v", err)
	}
}
