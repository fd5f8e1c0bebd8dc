package proctor

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/hubclient"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	DefaultBatchSize    = 20
	DefaultBatchTimeout = 5 * time.Second
	queueCapacity       = 256
	shutdownTimeout     = 5 * time.Second
)

// Sink persists a batch of events for one exam.
type Sink interface {
	Send(ctx context.Context, examID string, events []model.ProctorEvent) error
}

// BatchReporter buffers events and flushes them to a Sink when the batch is
// full or the batch timeout passes. Failed batches are kept and retried on
// the next flush; the oldest events are dropped past maxPending.
type BatchReporter struct {
	sink       Sink
	clock      clockwork.Clock
	size       int
	timeout    time.Duration
	maxPending int
	queue      chan model.ProctorEvent
	log        zerolog.Logger
}

// NewBatchReporter creates a new BatchReporter. Call Run in a goroutine.
func NewBatchReporter(sink Sink, clock clockwork.Clock, size int, timeout time.Duration, log zerolog.Logger) *BatchReporter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	return &BatchReporter{
		sink:       sink,
		clock:      clock,
		size:       size,
		timeout:    timeout,
		maxPending: size * 10,
		queue:      make(chan model.ProctorEvent, queueCapacity),
		log:        log.With().Str("component", "proctor_reporter").Logger(),
	}
}

// Report enqueues ev without blocking. Events are dropped when the queue is full.
func (r *BatchReporter) Report(ev model.ProctorEvent) {
	select {
	case r.queue <- ev:
	default:
		r.log.Warn().Str("kind", string(ev.Kind)).Msg("Proctor queue full, dropping event")
	}
}

// Run consumes the queue until ctx is cancelled, then flushes what is left.
func (r *BatchReporter) Run(ctx context.Context) {
	r.log.Info().Int("batch_size", r.size).Dur("batch_timeout", r.timeout).Msg("Proctor reporter started")

	ticker := r.clock.NewTicker(r.timeout)
	defer ticker.Stop()

	buffer := make([]model.ProctorEvent, 0, r.size)
	for {
		select {
		case <-ctx.Done():
			r.shutdown(buffer)
			return

		case ev := <-r.queue:
			buffer = append(buffer, ev)
			if len(buffer) >= r.size {
				buffer = r.flush(ctx, buffer)
			}

		case <-ticker.Chan():
			if len(buffer) > 0 {
				buffer = r.flush(ctx, buffer)
			}
		}
	}
}

// flush sends buffer grouped by exam and returns whatever must be retried.
func (r *BatchReporter) flush(ctx context.Context, buffer []model.ProctorEvent) []model.ProctorEvent {
	byExam := make(map[string][]model.ProctorEvent)
	order := make([]string, 0, 1)
	for _, ev := range buffer {
		if _, ok := byExam[ev.ExamID]; !ok {
			order = append(order, ev.ExamID)
		}
		byExam[ev.ExamID] = append(byExam[ev.ExamID], ev)
	}

	retry := buffer[:0:0]
	for _, examID := range order {
		batch := byExam[examID]
		if err := r.sink.Send(ctx, examID, batch); err != nil {
			r.log.Warn().Err(err).Str("exam_id", examID).Int("count", len(batch)).Msg("Proctor batch failed, keeping for retry")
			retry = append(retry, batch...)
			continue
		}
		r.log.Debug().Str("exam_id", examID).Int("count", len(batch)).Msg("Proctor batch sent")
	}

	if over := len(retry) - r.maxPending; over > 0 {
		r.log.Error().Int("dropped", over).Msg("Proctor backlog over capacity, dropping oldest events")
		retry = retry[over:]
	}
	return retry
}

func (r *BatchReporter) shutdown(buffer []model.ProctorEvent) {
drain:
	for {
		select {
		case ev := <-r.queue:
			buffer = append(buffer, ev)
		default:
			break drain
		}
	}
	if len(buffer) == 0 {
		return
	}

	r.log.Info().Int("count", len(buffer)).Msg("Reporter stopping, flushing remaining events...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if left := r.flush(ctx, buffer); len(left) > 0 {
		r.log.Error().Int("count", len(left)).Msg("Proctor events could not be delivered before exit")
	}
}

// HTTPSink posts batches to the hub.
type HTTPSink struct {
	client *hubclient.Client
}

// NewHTTPSink creates a new HTTPSink.
func NewHTTPSink(client *hubclient.Client) *HTTPSink {
	return &HTTPSink{client: client}
}

// EventBatch is the request body of the hub's proctor-events endpoint.
type EventBatch struct {
	Events []model.ProctorEvent `json:"events" binding:"required,min=1,max=500,dive"`
}

func (s *HTTPSink) Send(ctx context.Context, examID string, events []model.ProctorEvent) error {
	path := "/api/v1/exams/" + url.PathEscape(examID) + "/proctor-events"
	return s.client.Do(ctx, http.MethodPost, path, EventBatch{Events: events}, nil)
}

// LogReporter only logs; used when no hub is configured.
type LogReporter struct {
	Log zerolog.Logger
}

func (r LogReporter) Report(ev model.ProctorEvent) {
	r.Log.Debug().Str("kind", string(ev.Kind)).Str("exam_id", ev.ExamID).Msg("Proctor event not forwarded")
}
