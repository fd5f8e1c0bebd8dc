package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
)

// NewRedisClient connects to REDIS_URL, waiting up to cfg.ConnectTimeout for
// the server to come up. clientName shows in CLIENT LIST.
func NewRedisClient(ctx context.Context, cfg *config.Config, clientName string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if clientName != "" {
		opt.ClientName = clientName
	}

	rdb := redis.NewClient(opt)
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := pingWithRetry(ctx, "redis", cfg.ConnectTimeout, ping, log); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Str("client_name", clientName).
		Msg("Redis connected")

	return rdb, nil
}
