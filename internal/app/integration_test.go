package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/exec"
	"github.com/mmrzaf/tablegen/internal/infra/repos/jobs"
	"github.com/mmrzaf/tablegen/internal/logging"
	"github.com/mmrzaf/tablegen/internal/registry"
)

func shopRequest(rows int) *domain.GenerationRequest {
	seed := int64(7)
	return &domain.GenerationRequest{
		Config: domain.GenerationConfig{JobName: "shop", Seed: &seed},
		Tables: []domain.TableSpec{
			{
				ID:        "orders",
				Name:      "orders",
				RowsCount: rows,
				Fields: []domain.FieldSpec{
					{Name: "id", Kind: domain.FieldKindFaker, Params: map[string]interface{}{"method": "uuid4"}, IsUnique: true},
					{Name: "customer", Kind: domain.FieldKindForeignKey, Params: map[string]interface{}{"table_id": "customers", "column_name": "id"}},
				},
			},
			{
				ID:        "customers",
				Name:      "customers",
				RowsCount: 5,
				Fields: []domain.FieldSpec{
					{Name: "id", Kind: domain.FieldKindInteger, Params: map[string]interface{}{"min": 1, "max": 5}, IsUnique: true},
					{Name: "vip", Kind: domain.FieldKindBoolean},
				},
			},
		},
	}
}

func newTestService(t *testing.T, repo jobs.Repository, yield time.Duration) (*JobService, *WorkerPool) {
	t.Helper()
	pool := NewWorkerPool(2, 8)
	t.Cleanup(func() { _ = pool.Close() })
	svc := NewJobService(repo, registry.DefaultGeneratorRegistry(nil), pool, logging.Nop(), JobServiceOptions{
		DefaultLocale: "en_US",
		Executor:      exec.Options{Yield: yield},
	})
	return svc, pool
}

func waitFor(t *testing.T, svc *JobService, id string) *domain.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	job, err := svc.Wait(ctx, id, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for job %s: %v", id, err)
	}
	return job
}

func TestStartJobCompletesWithSQLiteStore(t *testing.T) {
	repo := jobs.NewSQLiteRepository(filepath.Join(t.TempDir(), "jobs.db"))
	if err := repo.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	svc, _ := newTestService(t, repo, 0)

	job, err := svc.StartJob(context.Background(), shopRequest(30))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusRunning && job.Status != domain.JobStatusCompleted {
		t.Fatalf("unexpected initial status %s", job.Status)
	}
	if job.ConfigHash == "" || job.TotalRows != 35 {
		t.Fatalf("unexpected job record: %+v", job)
	}

	done := waitFor(t, svc, job.ID)
	if done.Status != domain.JobStatusCompleted || done.Progress != 100 {
		t.Fatalf("expected completed job at 100%%, got %s %d (%s)", done.Status, done.Progress, done.Error)
	}

	ds, err := svc.Dataset(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Tables) != 2 || ds.Tables[0].Name != "customers" || ds.Tables[1].Name != "orders" {
		t.Fatalf("expected customers before orders, got %+v", ds.Tables)
	}
	ids := make(map[string]bool)
	for _, row := range ds.Tables[0].Rows {
		ids[fmt.Sprint(row["id"])] = true
	}
	for _, row := range ds.Tables[1].Rows {
		if !ids[fmt.Sprint(row["customer"])] {
			t.Fatalf("order references unknown customer %v", row["customer"])
		}
	}

	var buf bytes.Buffer
	exporter, err := svc.Export(context.Background(), job.ID, domain.OutputFormatCSV, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exporter.FileExtension() != ".zip" {
		t.Fatalf("unexpected extension %s", exporter.FileExtension())
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected two csv files, got %d", len(zr.File))
	}

	listed, err := svc.ListJobs(context.Background(), 10, string(domain.JobStatusCompleted))
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one completed job listed, got %d (%v)", len(listed), err)
	}
}

func TestStartJobRejectsInvalidRequest(t *testing.T) {
	repo := jobs.NewMemoryRepository()
	svc, _ := newTestService(t, repo, 0)

	req := shopRequest(10)
	req.Tables[0].RowsCount = 0
	if _, err := svc.StartJob(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	list, _ := repo.ListJobs(context.Background(), 0, "")
	if len(list) != 0 {
		t.Fatalf("invalid request must not create a job, got %d", len(list))
	}
}

func TestCancelRunningJob(t *testing.T) {
	repo := jobs.NewMemoryRepository()
	svc, _ := newTestService(t, repo, 2*time.Millisecond)

	job, err := svc.StartJob(context.Background(), shopRequest(domain.MaxRowsPerTable))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		got, _ := svc.GetJob(context.Background(), job.ID)
		if got.Status == domain.JobStatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never started, status %s", got.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if _, err := svc.CancelJob(context.Background(), job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	done := waitFor(t, svc, job.ID)
	if done.Status != domain.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", done.Status)
	}
	if len(done.Data) != 0 || done.Progress == 100 {
		t.Fatalf("cancelled job must not publish data: progress=%d data=%d bytes", done.Progress, len(done.Data))
	}
	if _, err := svc.Dataset(context.Background(), job.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if _, err := svc.CancelJob(context.Background(), job.ID); !errors.Is(err, jobs.ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized on second cancel, got %v", err)
	}
}

func TestCancelPendingJobNeverRuns(t *testing.T) {
	repo := jobs.NewMemoryRepository()
	pool := NewWorkerPool(1, 4)
	svc := NewJobService(repo, registry.DefaultGeneratorRegistry(nil), pool, logging.Nop(), JobServiceOptions{})

	release := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatal(err)
	}
	<-started

	job, err := svc.StartJob(context.Background(), shopRequest(10))
	if err != nil {
		t.Fatal(err)
	}
	cancelled, err := svc.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.JobStatusCancelled {
		t.Fatalf("pending job should be cancelled immediately, got %s", cancelled.Status)
	}

	close(release)
	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != domain.JobStatusCancelled || got.Progress != 0 {
		t.Fatalf("cancelled job must stay untouched, got %s at %d%%", got.Status, got.Progress)
	}
}

func TestShutdownCancelsQueuedJobs(t *testing.T) {
	repo := jobs.NewMemoryRepository()
	pool := NewWorkerPool(1, 4)
	svc := NewJobService(repo, registry.DefaultGeneratorRegistry(nil), pool, logging.Nop(), JobServiceOptions{})

	started := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}); err != nil {
		t.Fatal(err)
	}
	<-started

	job, err := svc.StartJob(context.Background(), shopRequest(10))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from shutdown, got %v", err)
	}
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Fatalf("expected queued job to end cancelled, got %s", got.Status)
	}
}

func TestWorkerPoolQueueLimits(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	if err := pool.Submit(func(context.Context) { close(started); <-release }); err != nil {
		t.Fatal(err)
	}
	<-started
	ran := make(chan struct{})
	if err := pool.Submit(func(context.Context) { close(ran) }); err != nil {
		t.Fatalf("queue slot should be free: %v", err)
	}
	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("queued task must run before Close returns")
	}
	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestExportFormatDefaultsToRequest(t *testing.T) {
	repo := jobs.NewMemoryRepository()
	svc, _ := newTestService(t, repo, 0)

	req := shopRequest(5)
	req.Config.OutputFormat = domain.OutputFormatSQL
	job, err := svc.StartJob(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc, job.ID)

	exporter, err := svc.ExportFormat(context.Background(), job.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if exporter.FileExtension() != ".sql" {
		t.Fatalf("expected sql exporter, got %s", exporter.FileExtension())
	}
	var buf bytes.Buffer
	if _, err := svc.Export(context.Background(), job.ID, "", &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`INSERT INTO "customers"`)) {
		t.Fatalf("unexpected sql export: %s", buf.String())
	}
}
