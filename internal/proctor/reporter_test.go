package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/hubclient"
	"github.com/stemsi/exstem-session/internal/model"
)

type memSink struct {
	mu      sync.Mutex
	fail    int
	batches [][]model.ProctorEvent
	sent    chan struct{}
}

func (s *memSink) Send(_ context.Context, _ string, events []model.ProctorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("hub down")
	}
	s.batches = append(s.batches, append([]model.ProctorEvent(nil), events...))
	s.sent <- struct{}{}
	return nil
}

func event(kind model.ProctorEventKind) model.ProctorEvent {
	return model.ProctorEvent{ExamID: "e1", UserID: "stu-1", Kind: kind, RecordedAt: time.Now()}
}

func waitSent(t *testing.T, s *memSink) {
	t.Helper()
	select {
	case <-s.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not sent")
	}
}

func TestBatchReporterFlushesOnSize(t *testing.T) {
	sink := &memSink{sent: make(chan struct{}, 4)}
	r := NewBatchReporter(sink, clockwork.NewFakeClock(), 2, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Report(event(model.ProctorEventFocusLost))
	r.Report(event(model.ProctorEventFocusGained))
	waitSent(t, sink)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 1 || len(sink.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %v", sink.batches)
	}
}

func TestBatchReporterRetriesOnTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &memSink{fail: 1, sent: make(chan struct{}, 4)}
	r := NewBatchReporter(sink, clock, 10, 5*time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	clock.BlockUntil(1)

	r.Report(event(model.ProctorEventShortcutBlocked))

	// First flush fails and keeps the event; the next tick delivers it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		clock.Advance(5 * time.Second)
		select {
		case <-sink.sent:
			sink.mu.Lock()
			n := len(sink.batches[0])
			sink.mu.Unlock()
			if n != 1 {
				t.Fatalf("expected the retained event, got %d", n)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("event was never delivered")
		}
	}
}

func TestBatchReporterFlushesOnShutdown(t *testing.T) {
	sink := &memSink{sent: make(chan struct{}, 4)}
	r := NewBatchReporter(sink, clockwork.NewFakeClock(), 50, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	r.Report(event(model.ProctorEventReleased))
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 1 {
		t.Fatalf("expected remaining event flushed on shutdown, got %v", sink.batches)
	}
}

func TestHTTPSinkPostsBatch(t *testing.T) {
	var got EventBatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/exams/e1/proctor-events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"accepted":1}}`))
	}))
	defer srv.Close()

	sink := NewHTTPSink(hubclient.New(srv.URL, "tok", srv.Client()))
	if err := sink.Send(context.Background(), "e1", []model.ProctorEvent{event(model.ProctorEventFocusLost)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(got.Events) != 1 || got.Events[0].Kind != model.ProctorEventFocusLost {
		t.Fatalf("unexpected body %+v", got)
	}
}
