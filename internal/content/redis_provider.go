package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// RedisProvider reads the paper cached by the hub (or cmd/seed-exam).
type RedisProvider struct {
	rdb *redis.Client
}

// NewRedisProvider creates a new RedisProvider.
func NewRedisProvider(rdb *redis.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb}
}

func (p *RedisProvider) Load(ctx context.Context, examID string) (*model.ExamContent, error) {
	data, err := p.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, loadError(examID, ErrNotFound)
		}
		return nil, loadError(examID, err)
	}

	var exam model.ExamContent
	if err := json.Unmarshal(data, &exam); err != nil {
		return nil, loadError(examID, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	if err := Prepare(&exam, examID); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Publish caches exam under its payload key. Used by the hub tooling.
func (p *RedisProvider) Publish(ctx context.Context, exam *model.ExamContent) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	return p.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID), data, 0).Err()
}
