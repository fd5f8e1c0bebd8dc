//go:build integration

package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// Requires DATABASE_URL pointing at a database migrated with cmd/migrate.
func TestSubmissionWorkerDrainsQueueOnShutdown(t *testing.T) {
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
	_, _ = pool.Exec(ctx, `DELETE FROM exam_submissions WHERE exam_id = 'worker-e1'`)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		// Same (exam, user) twice: the first one wins.
		data, _ := json.Marshal(&model.Submission{
			SessionID:   uuid.New(),
			ExamID:      "worker-e1",
			UserID:      "stu-1",
			Answers:     map[string]any{"q1": "A"},
			SubmittedAt: now,
			Method:      model.SubmitMethodManual,
		})
		rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, data)
	}

	w := NewSubmissionWorker(pool, rdb, zerolog.Nop())
	stopped, cancel := context.WithCancel(ctx)
	cancel()
	w.Start(stopped)

	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_submissions WHERE exam_id = 'worker-e1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one stored submission, got %d", n)
	}
	if left := mr.Exists(config.WorkerKey.PersistSubmissionsQueue); left {
		t.Fatal("expected the queue to be drained")
	}
}
