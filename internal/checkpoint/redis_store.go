package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// RedisStore keeps each checkpoint as one JSON string; a single SET replaces it atomically.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.CheckpointKey(cp.ExamID, cp.UserID), data, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, userID, examID string) (*model.Checkpoint, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.CheckpointKey(examID, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID, examID string) error {
	return s.rdb.Del(ctx, config.CacheKey.CheckpointKey(examID, userID)).Err()
}

func (s *RedisStore) MarkSubmitted(ctx context.Context, userID, examID string, at time.Time) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.SubmittedMarkerKey(examID, userID), at.Unix(), 0)
		pipe.Del(ctx, config.CacheKey.CheckpointKey(examID, userID))
		return nil
	})
	return err
}

func (s *RedisStore) IsSubmitted(ctx context.Context, userID, examID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.SubmittedMarkerKey(examID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// claimScript sets the lease when it is absent or already ours. Expiry is left
// to the key's TTL.
var claimScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if ARGV[1] == '' or redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (s *RedisStore) Claim(ctx context.Context, l *Lease, now time.Time) error {
	ttl := l.ExpiresAt.Sub(now).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	ok, err := claimScript.Run(ctx, s.rdb, []string{config.CacheKey.SessionLeaseKey(l.ExamID, l.UserID)}, l.Holder, ttl).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrLeaseHeld
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, userID, examID, holder string) error {
	return releaseScript.Run(ctx, s.rdb, []string{config.CacheKey.SessionLeaseKey(examID, userID)}, holder).Err()
}
