package database

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// pingWithRetry retries ping with exponential backoff until it succeeds,
// maxWait has elapsed or ctx ends. A non-positive maxWait pings once.
func pingWithRetry(ctx context.Context, target string, maxWait time.Duration, ping func(context.Context) error, log zerolog.Logger) error {
	if maxWait <= 0 {
		return ping(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxWait

	return backoff.RetryNotify(
		func() error { return ping(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			log.Warn().Err(err).Str("target", target).Dur("retry_in", next).Msg("Not reachable yet, retrying")
		},
	)
}
