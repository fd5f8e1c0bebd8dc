package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/checkpoint"
	"github.com/stemsi/exstem-session/internal/content"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/submission"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type memContent map[string]*model.ExamContent

func (m memContent) Load(_ context.Context, examID string) (*model.ExamContent, error) {
	exam, ok := m[examID]
	if !ok {
		return nil, &content.LoadError{ExamID: examID, Err: content.ErrNotFound}
	}
	return exam, nil
}

// tenQuestionExam mixes every question type across ten questions.
func tenQuestionExam() *model.ExamContent {
	abcd := []string{"A", "B", "C", "D"}
	qs := []model.Question{
		{ID: "q1", Type: model.QuestionTypeSingleChoice, Options: abcd},
		{ID: "q2", Type: model.QuestionTypeMultipleChoice, Options: abcd},
		{ID: "q3", Type: model.QuestionTypeTrueFalse, Options: model.DefaultTrueFalseOptions},
		{ID: "q4", Type: model.QuestionTypeFillBlank},
		{ID: "q5", Type: model.QuestionTypeShortAnswer},
		{ID: "q6", Type: model.QuestionTypeEssay},
		{ID: "q7", Type: model.QuestionTypeSingleChoice, Options: abcd},
		{ID: "q8", Type: model.QuestionTypeMultipleChoice, Options: abcd},
		{ID: "q9", Type: model.QuestionTypeTrueFalse, Options: model.DefaultTrueFalseOptions},
		{ID: "q10", Type: model.QuestionTypeEssay},
	}
	for i := range qs {
		qs[i].OrderNum = i + 1
		qs[i].Prompt = fmt.Sprintf("Question %d", i+1)
	}
	return &model.ExamContent{ID: "e1", Name: "Science", DurationMinutes: 60, Questions: qs}
}

// fakeGateway records every payload and returns scripted results in order;
// once the script runs out it accepts.
type fakeGateway struct {
	mu       sync.Mutex
	script   []submission.Result
	payloads []*model.Submission
	// hook runs inside Submit, before the result is returned.
	hook func()
	// release, when set, blocks Submit until it is closed.
	release chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) Submit(ctx context.Context, s *model.Submission) submission.Result {
	g.mu.Lock()
	g.payloads = append(g.payloads, s)
	i := len(g.payloads) - 1
	hook, release, entered := g.hook, g.release, g.entered
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return submission.Result{Outcome: submission.OutcomeUnreachable, Err: ctx.Err()}
		}
	}
	if hook != nil {
		hook()
	}
	if i < len(g.script) {
		return g.script[i]
	}
	return submission.Result{Outcome: submission.OutcomeAccepted, Message: "stored", Attempts: 1}
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.payloads)
}

func (g *fakeGateway) last() *model.Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payloads[len(g.payloads)-1]
}

// recorder is a Listener that keeps everything it is told.
type recorder struct {
	mu       sync.Mutex
	ticks    []time.Duration
	results  []SubmitResult
	statuses []model.SessionStatus
	changed  []string
}

func (r *recorder) OnAnswerChanged(id string, _ model.Answer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, id)
}

func (r *recorder) OnTick(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, d)
}

func (r *recorder) OnSubmitResult(res SubmitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) OnStatusChanged(_, to model.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, to)
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

type harness struct {
	clock   *clockwork.FakeClock
	store   checkpoint.Store
	mgr     *checkpoint.Manager
	gateway *fakeGateway
	content memContent
	events  *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	clock := clockwork.NewFakeClockAt(t0)
	return &harness{
		clock:   clock,
		store:   store,
		mgr:     checkpoint.NewManager(store, clock, checkpoint.Options{}, zerolog.Nop()),
		gateway: &fakeGateway{},
		content: memContent{"e1": tenQuestionExam()},
		events:  &recorder{},
	}
}

// controller builds a fresh Controller over the harness; calling it twice
// simulates a process restart against the same durable store.
func (h *harness) controller() *Controller {
	return NewController(Deps{
		Content:     h.content,
		Checkpoints: h.mgr,
		Gateway:     h.gateway,
		Clock:       h.clock,
		Listener:    h.events,
		Log:         zerolog.Nop(),
	})
}

func (h *harness) started(t *testing.T) *Controller {
	t.Helper()
	c := h.controller()
	if err := c.Start(context.Background(), "e1", student); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c
}

// crash drops the running client without a clean exit; its lease lapses.
func (h *harness) crash() {
	h.clock.Advance(h.mgr.LeaseTTL() + time.Second)
}

var student = model.Identity{UserID: "stu-1", Role: model.RoleStudent}

func mustRecord(t *testing.T, c *Controller, id string, raw any) {
	t.Helper()
	if _, err := c.RecordAnswer(id, raw); err != nil {
		t.Fatalf("record %s: %v", id, err)
	}
}
