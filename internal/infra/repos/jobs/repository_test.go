package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/redis/go-redis/v9"
)

// exerciseRepository checks the lifecycle rules every store must honor.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	job := &domain.Job{Name: "orders", ConfigHash: "abc", Request: json.RawMessage(`{"tables":[]}`)}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	got, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusPending || got.Name != "orders" || got.ConfigHash != "abc" {
		t.Fatalf("unexpected job after create: %+v", got)
	}
	if string(got.Request) != `{"tables":[]}` {
		t.Fatalf("request not stored: %s", got.Request)
	}

	if _, err := repo.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.IsCancelRequested(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from cancel poll, got %v", err)
	}

	if err := repo.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := repo.SetTotal(ctx, job.ID, 40); err != nil {
		t.Fatalf("set total: %v", err)
	}
	if err := repo.UpdateProgress(ctx, job.ID, 50); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, _ = repo.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusRunning || got.Progress != 50 || got.TotalRows != 40 {
		t.Fatalf("unexpected running job: %+v", got)
	}

	if requested, _ := repo.IsCancelRequested(ctx, job.ID); requested {
		t.Fatal("cancel must not be requested yet")
	}
	if err := repo.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if requested, _ := repo.IsCancelRequested(ctx, job.ID); !requested {
		t.Fatal("expected cancel flag to be set")
	}
	got, _ = repo.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusRunning {
		t.Fatalf("request cancel must not change status, got %s", got.Status)
	}

	if err := repo.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = repo.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusCancelled || got.CompletedAt == nil {
		t.Fatalf("unexpected cancelled job: %+v", got)
	}
	if err := repo.CompleteJob(ctx, job.ID, json.RawMessage(`{}`)); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized, got %v", err)
	}
	if err := repo.UpdateProgress(ctx, job.ID, 99); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized on progress, got %v", err)
	}

	done := &domain.Job{Name: "users"}
	if err := repo.CreateJob(ctx, done); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if err := repo.CompleteJob(ctx, done.ID, json.RawMessage(`{"users":[{"id":1}]}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = repo.GetJob(ctx, done.ID)
	if got.Status != domain.JobStatusCompleted || got.Progress != 100 {
		t.Fatalf("unexpected completed job: %+v", got)
	}
	if string(got.Data) != `{"users":[{"id":1}]}` {
		t.Fatalf("data not stored: %s", got.Data)
	}

	failed := &domain.Job{Name: "broken"}
	if err := repo.CreateJob(ctx, failed); err != nil {
		t.Fatalf("create third: %v", err)
	}
	if err := repo.FailJob(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := repo.RequestCancel(ctx, failed.ID); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized on cancel of failed job, got %v", err)
	}
	got, _ = repo.GetJob(ctx, failed.ID)
	if got.Status != domain.JobStatusFailed || got.Error != "boom" {
		t.Fatalf("unexpected failed job: %+v", got)
	}

	all, err := repo.ListJobs(ctx, 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) < 3 {
		t.Fatalf("expected at least 3 jobs, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("jobs must be listed newest first")
		}
	}

	completed, err := repo.ListJobs(ctx, 0, string(domain.JobStatusCompleted))
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	for _, j := range completed {
		if j.Status != domain.JobStatusCompleted {
			t.Fatalf("status filter leaked %s", j.Status)
		}
	}
	limited, err := repo.ListJobs(ctx, 1, "")
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestMemoryRepositoryContract(t *testing.T) {
	t.Parallel()
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepository()

	job := &domain.Job{Name: "copy"}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, _ := repo.GetJob(ctx, job.ID)
	got.Status = domain.JobStatusFailed

	again, _ := repo.GetJob(ctx, job.ID)
	if again.Status != domain.JobStatusPending {
		t.Fatalf("caller mutation leaked into store: %s", again.Status)
	}
}

func TestPostgresRepositoryContract(t *testing.T) {
	dsn := os.Getenv("TABLEGEN_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TABLEGEN_TEST_PG_DSN not set")
	}
	repo := NewPostgresRepository(dsn)
	if err := repo.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	exerciseRepository(t, repo)
}

func TestRedisRepositoryContract(t *testing.T) {
	url := os.Getenv("TABLEGEN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TABLEGEN_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	prefix := "tablegen-test-" + time.Now().UTC().Format("20060102150405.000000000")
	repo := NewRedisRepository(client, prefix, time.Minute)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = repo.Close()
	})

	exerciseRepository(t, repo)
}

func TestClampProgress(t *testing.T) {
	t.Parallel()
	cases := map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 150: 100}
	for in, want := range cases {
		if got := clampProgress(in); got != want {
			t.Fatalf("clampProgress(%d) = %d, want %d", in, got, want)
		}
	}
}
