//go:build integration

package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Requires DATABASE_URL pointing at a database migrated with cmd/migrate.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	_, _ = pool.Exec(ctx, `DELETE FROM exam_checkpoints WHERE user_id = 'u1'`)
	_, _ = pool.Exec(ctx, `DELETE FROM exam_submitted_markers WHERE user_id = 'u1'`)

	_, _ = pool.Exec(ctx, `DELETE FROM exam_session_leases WHERE user_id = 'u9'`)

	runStoreContract(t, NewPostgresStore(pool))
	runLeaseContract(t, NewPostgresStore(pool), func(time.Duration) {})
}
