package console

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/checkpoint"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/proctor"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/submission"
	"github.com/stemsi/exstem-session/internal/timer"
)

// typeKeys posts keystrokes the way a terminal would deliver them.
func typeKeys(s tcell.Screen, text string) {
	for _, r := range text {
		if r == '\r' {
			s.PostEventWait(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
			continue
		}
		s.PostEventWait(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
}

func screenText(s tcell.SimulationScreen) string {
	cells, width, _ := s.GetContents()
	var b strings.Builder
	for i, cell := range cells {
		if len(cell.Runes) > 0 {
			b.WriteString(string(cell.Runes))
		} else {
			b.WriteByte(' ')
		}
		if (i+1)%width == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

type staticContent struct{ exam *model.ExamContent }

func (s staticContent) Load(context.Context, string) (*model.ExamContent, error) {
	return s.exam, nil
}

type acceptAll struct {
	mu  sync.Mutex
	got []*model.Submission
}

func (a *acceptAll) Submit(_ context.Context, s *model.Submission) submission.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, s)
	return submission.Result{Outcome: submission.OutcomeAccepted, Message: "stored", Attempts: 1}
}

func (a *acceptAll) payloads() []*model.Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*model.Submission(nil), a.got...)
}

func TestConsoleDrivesSessionToSubmission(t *testing.T) {
	exam := &model.ExamContent{
		ID: "bio", Name: "Biology", DurationMinutes: 30,
		Questions: []model.Question{
			{ID: "q1", OrderNum: 1, Type: model.QuestionTypeSingleChoice, Prompt: "Powerhouse of the cell?", Options: []string{"Nucleus", "Mitochondria"}},
			{ID: "q2", OrderNum: 2, Type: model.QuestionTypeMultipleChoice, Prompt: "Pick the organelles", Options: []string{"Ribosome", "Plasma", "Golgi"}},
		},
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	store, err := checkpoint.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	gw := &acceptAll{}

	sim := tcell.NewSimulationScreen("UTF-8")
	con := New(zerolog.Nop())
	if err := con.Open(sim); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer con.Close()

	ctrl := session.NewController(session.Deps{
		Content:     staticContent{exam},
		Checkpoints: checkpoint.NewManager(store, clock, checkpoint.Options{}, zerolog.Nop()),
		Gateway:     gw,
		Clock:       clock,
		Listener:    con,
		Log:         zerolog.Nop(),
	})
	student := model.Identity{UserID: "stu-7", Role: model.RoleStudent}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx, "bio", student); err != nil {
		t.Fatalf("start: %v", err)
	}

	monitor := proctor.NewMonitor(con, nil, clock, "", zerolog.Nop())
	if err := monitor.Engage(student, "bio", ctrl.Session().ID); err != nil {
		t.Fatalf("engage: %v", err)
	}

	runner := session.NewRunner(ctrl, timer.NewScheduler(clock, time.Second, 30*time.Second), zerolog.Nop())
	con.Attach(runner, monitor, nil)

	go runner.Run(ctx)
	errc := make(chan error, 1)
	go func() { errc <- con.Run(ctx) }()

	typeKeys(sim, "a b\r") // Mitochondria by letter
	sim.PostEventWait(tcell.NewEventFocus(false))
	sim.PostEventWait(tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl))
	sim.PostEventWait(tcell.NewEventFocus(true))
	sim.PostEventWait(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone)) // next question
	typeKeys(sim, "a ribosome, C\r")
	typeKeys(sim, "submit\ry\r")

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("console run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console did not finish after submission")
	}

	got := gw.payloads()
	if len(got) != 1 {
		t.Fatalf("expected one submission, got %d", len(got))
	}
	want := map[string]any{"q1": "Mitochondria", "q2": []string{"Golgi", "Ribosome"}}
	if !reflect.DeepEqual(got[0].Answers, want) {
		t.Fatalf("answers = %#v, want %#v", got[0].Answers, want)
	}
	if got[0].Method != model.SubmitMethodManual {
		t.Fatalf("method = %s", got[0].Method)
	}

	flags := monitor.Flags()
	if flags.FocusLosses != 1 || flags.ShortcutsBlocked != 1 {
		t.Fatalf("unexpected flags %+v", flags)
	}

	screen := screenText(sim)
	for _, want := range []string{"Biology", "Submitted."} {
		if !strings.Contains(screen, want) {
			t.Fatalf("screen missing %q:\n%s", want, screen)
		}
	}
}

func TestShellRequiresOpenScreen(t *testing.T) {
	sim := tcell.NewSimulationScreen("UTF-8")
	con := New(zerolog.Nop())

	if err := con.SetExclusive(true); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen before Open, got %v", err)
	}
	// Session events before Open are kept, not drawn.
	con.OnTick(5 * time.Minute)
	if err := con.Open(sim); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer con.Close()
	if err := con.SetExclusive(true); err != nil {
		t.Fatalf("set exclusive: %v", err)
	}
	if err := con.Refocus(); err != nil {
		t.Fatalf("refocus: %v", err)
	}
	if err := con.SetExclusive(false); err != nil {
		t.Fatalf("leave exclusive: %v", err)
	}
}
