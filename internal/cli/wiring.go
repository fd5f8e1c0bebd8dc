package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/checkpoint"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/content"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/hubclient"
	"github.com/stemsi/exstem-session/internal/identity"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/proctor"
	"github.com/stemsi/exstem-session/internal/submission"
)

var errUnknownOption = errors.New("unknown option")

// deps holds lazily opened collaborators for one command.
type deps struct {
	cfg       *config.Config
	log       zerolog.Logger
	clock     clockwork.Clock
	hub       *hubclient.Client
	authority *identity.Authority

	rdb     *redis.Client
	pool    *pgxpool.Pool
	closers []func()
}

func newDeps(cfg *config.Config, log zerolog.Logger) *deps {
	return &deps{
		cfg:       cfg,
		log:       log,
		clock:     clockwork.NewRealClock(),
		hub:       hubclient.New(cfg.HubURL, cfg.AuthToken, nil),
		authority: identity.NewAuthority(cfg.JWTSecret, cfg.JWTExpiry),
	}
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *deps) redis(ctx context.Context) (*redis.Client, error) {
	if d.rdb != nil {
		return d.rdb, nil
	}
	rdb, err := database.NewRedisClient(ctx, d.cfg, "examclient", d.log)
	if err != nil {
		return nil, err
	}
	d.rdb = rdb
	d.closers = append(d.closers, func() { rdb.Close() })
	return rdb, nil
}

func (d *deps) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if d.pool != nil {
		return d.pool, nil
	}
	pool, err := database.NewPostgresPool(ctx, d.cfg, "examclient", d.log)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	d.closers = append(d.closers, pool.Close)
	return pool, nil
}

func (d *deps) checkpointStore(ctx context.Context) (checkpoint.Store, error) {
	switch d.cfg.CheckpointDriver {
	case "file":
		return checkpoint.NewFileStore(d.cfg.CheckpointDir)
	case "sqlite":
		db, err := database.OpenSQLite(ctx, d.cfg.SQLiteDSN, d.log)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { db.Close() })
		return checkpoint.NewSQLiteStore(db), nil
	case "redis":
		rdb, err := d.redis(ctx)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewRedisStore(rdb), nil
	case "postgres":
		pool, err := d.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewPostgresStore(pool), nil
	}
	return nil, fmt.Errorf("%w: CHECKPOINT_DRIVER=%q", errUnknownOption, d.cfg.CheckpointDriver)
}

func (d *deps) checkpointManager(ctx context.Context) (*checkpoint.Manager, error) {
	store, err := d.checkpointStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	opts := checkpoint.Options{
		WriteTimeout: d.cfg.CheckpointWriteTimeout,
		LeaseTTL:     d.cfg.CheckpointLeaseTTL,
	}
	return checkpoint.NewManager(store, d.clock, opts, d.log), nil
}

func (d *deps) contentProvider(ctx context.Context) (content.Provider, error) {
	switch d.cfg.ContentSource {
	case "http":
		return content.NewHTTPProvider(d.hub), nil
	case "redis":
		rdb, err := d.redis(ctx)
		if err != nil {
			return nil, err
		}
		return content.NewRedisProvider(rdb), nil
	case "file":
		return content.NewFileProvider(d.cfg.ContentDir), nil
	}
	return nil, fmt.Errorf("%w: CONTENT_SOURCE=%q", errUnknownOption, d.cfg.ContentSource)
}

func (d *deps) transport() (submission.Transport, error) {
	switch d.cfg.HubTransport {
	case "http":
		return submission.NewHTTPTransport(d.hub), nil
	case "ws":
		return submission.NewWSTransport(d.cfg.HubURL, d.cfg.AuthToken), nil
	}
	return nil, fmt.Errorf("%w: HUB_TRANSPORT=%q", errUnknownOption, d.cfg.HubTransport)
}

func (d *deps) gateway() (*submission.Gateway, error) {
	tr, err := d.transport()
	if err != nil {
		return nil, err
	}
	return submission.NewGateway(tr, submission.Options{
		MaxRetries:     d.cfg.SubmitMaxRetries,
		InitialBackoff: d.cfg.SubmitInitialBackoff,
		AttemptTimeout: d.cfg.SubmitTimeout,
	}, d.log), nil
}

// identityProvider uses --user (kiosk mode) when given, else AUTH_TOKEN.
func (d *deps) identityProvider(user string) identity.Provider {
	if user != "" {
		return identity.StaticProvider{UserID: user, Role: model.RoleStudent}
	}
	return identity.NewTokenProvider(d.authority, d.cfg.AuthToken)
}

// reporter forwards proctor events to the hub when a token is configured.
// The returned *BatchReporter is nil when events are only logged.
func (d *deps) reporter() (proctor.Reporter, *proctor.BatchReporter) {
	if d.cfg.AuthToken == "" {
		return proctor.LogReporter{Log: d.log}, nil
	}
	batch := proctor.NewBatchReporter(proctor.NewHTTPSink(d.hub), d.clock, d.cfg.ProctorBatchSize, 0, d.log)
	return batch, batch
}

// verifyProctor resolves an override token to a proctor identity.
func (d *deps) verifyProctor(token string) (model.Identity, error) {
	claims, err := d.authority.Validate(token)
	if err != nil {
		return model.Identity{}, err
	}
	return model.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
