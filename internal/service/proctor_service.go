package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// ProctorService queues integrity events for persistence and fans them out
// to live monitors over Redis PubSub.
type ProctorService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(rdb *redis.Client, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		rdb: rdb,
		log: log.With().Str("component", "proctor_service").Logger(),
	}
}

// Record queues events reported by caller. Students may only report their own events.
func (s *ProctorService) Record(ctx context.Context, caller model.Identity, examID string, events []model.ProctorEvent) error {
	for i := range events {
		if events[i].ExamID != examID {
			return ErrExamMismatch
		}
		if events[i].UserID != caller.UserID && !caller.Role.Privileged() {
			return ErrUserMismatch
		}
	}

	channel := config.CacheKey.ExamProctorChannel(examID)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range events {
			data, err := json.Marshal(&events[i])
			if err != nil {
				return err
			}
			pipe.RPush(ctx, config.WorkerKey.PersistProctorQueue, data)
			pipe.Publish(ctx, channel, data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue proctor events: %w", err)
	}

	s.log.Debug().Str("exam_id", examID).Int("count", len(events)).Msg("Proctor events queued")
	return nil
}

// Subscribe streams live events for examID until ctx ends.
func (s *ProctorService) Subscribe(ctx context.Context, examID string) (<-chan model.ProctorEvent, error) {
	sub := s.rdb.Subscribe(ctx, config.CacheKey.ExamProctorChannel(examID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan model.ProctorEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.ProctorEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.log.Warn().Err(err).Msg("Dropping malformed live proctor event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
