package app

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/exec"
	"github.com/mmrzaf/tablegen/internal/export"
	"github.com/mmrzaf/tablegen/internal/hashing"
	"github.com/mmrzaf/tablegen/internal/infra/repos/jobs"
	"github.com/mmrzaf/tablegen/internal/logging"
	"github.com/mmrzaf/tablegen/internal/registry"
	"github.com/mmrzaf/tablegen/internal/validation"
)

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrNotCompleted   = errors.New("job has not completed")
)

type JobServiceOptions struct {
	// DefaultLocale applies to requests that leave config.locale empty.
	DefaultLocale string
	Executor      exec.Options
}

type JobService struct {
	jobRepo   jobs.Repository
	validator *validation.Validator
	executor  *exec.Executor
	pool      *WorkerPool
	logger    *logging.Logger
	opts      JobServiceOptions

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewJobService(
	jobRepo jobs.Repository,
	genRegistry *registry.GeneratorRegistry,
	pool *WorkerPool,
	logger *logging.Logger,
	opts JobServiceOptions,
) *JobService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &JobService{
		jobRepo:   jobRepo,
		validator: validation.NewValidator(genRegistry),
		executor:  exec.NewExecutor(genRegistry, jobRepo, logger, opts.Executor),
		pool:      pool,
		logger:    logger.WithComponent("job_service"),
		opts:      opts,
		running:   make(map[string]context.CancelFunc),
	}
}

func (s *JobService) Validate(req *domain.GenerationRequest) error {
	if err := s.validator.ValidateRequest(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// StartJob validates req, records a pending job and queues it.
func (s *JobService) StartJob(ctx context.Context, req *domain.GenerationRequest) (*domain.Job, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	if req.Config.Locale == "" {
		req.Config.Locale = s.opts.DefaultLocale
	}

	var seed int64
	if req.Config.Seed != nil {
		seed = *req.Config.Seed
	} else {
		seed = generateSeed()
	}

	configHash, err := hashing.HashRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to hash request: %w", err)
	}
	runHash, err := hashing.HashJobConfig(req, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash job config: %w", err)
	}
	snapshot, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var total int64
	for _, t := range req.Tables {
		total += int64(t.RowsCount)
	}
	job := &domain.Job{
		Name:       req.Config.JobName,
		ConfigHash: configHash,
		Request:    snapshot,
		TotalRows:  total,
	}
	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	id := job.ID
	if err := s.pool.Submit(func(taskCtx context.Context) {
		s.runJob(taskCtx, id, req, seed)
	}); err != nil {
		_ = s.jobRepo.FailJob(context.WithoutCancel(ctx), id, err.Error())
		return nil, err
	}

	s.logger.Infow("job.queued", map[string]any{
		"job_id":      id,
		"job_name":    job.Name,
		"tables":      len(req.Tables),
		"total_rows":  total,
		"seed":        seed,
		"config_hash": configHash,
		"run_hash":    runHash,
	})
	return s.jobRepo.GetJob(ctx, id)
}

func (s *JobService) runJob(ctx context.Context, id string, req *domain.GenerationRequest, seed int64) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(id, cancel)
	defer s.untrack(id)

	// Final status writes must land even after ctx is cancelled.
	storeCtx := context.WithoutCancel(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("job.panicked", map[string]any{"job_id": id, "panic": fmt.Sprint(r)})
			s.finish(id, s.jobRepo.FailJob(storeCtx, id, fmt.Sprintf("panic: %v", r)))
		}
	}()

	if err := s.jobRepo.MarkRunning(storeCtx, id); err != nil {
		if errors.Is(err, jobs.ErrJobFinalized) {
			s.logger.Infow("job.skipped", map[string]any{"job_id": id})
			return
		}
		s.logger.Errorw("job.start_failed", map[string]any{"job_id": id, "error": err.Error()})
		return
	}
	s.logger.Infow("job.started", map[string]any{"job_id": id, "seed": seed})

	dataset, err := s.executor.Execute(ctx, req, id, seed)
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrCancelled), errors.Is(err, context.Canceled):
		s.logger.Infow("job.cancelled", map[string]any{"job_id": id, "duration_seconds": time.Since(start).Seconds()})
		s.finish(id, s.jobRepo.CancelJob(storeCtx, id))
		return
	default:
		s.logger.Errorw("job.failed", map[string]any{"job_id": id, "error": err.Error()})
		s.finish(id, s.jobRepo.FailJob(storeCtx, id, err.Error()))
		return
	}

	// A cancel that arrives after the last batch still wins.
	if requested, err := s.jobRepo.IsCancelRequested(storeCtx, id); err == nil && requested {
		s.logger.Infow("job.cancelled", map[string]any{"job_id": id, "duration_seconds": time.Since(start).Seconds()})
		s.finish(id, s.jobRepo.CancelJob(storeCtx, id))
		return
	}

	data, err := json.Marshal(dataset)
	if err != nil {
		s.finish(id, s.jobRepo.FailJob(storeCtx, id, fmt.Sprintf("failed to encode dataset: %v", err)))
		return
	}
	if err := s.jobRepo.CompleteJob(storeCtx, id, data); err != nil {
		s.finish(id, err)
		return
	}
	s.logger.Infow("job.completed", map[string]any{
		"job_id":           id,
		"tables":           len(dataset.Tables),
		"total_rows":       dataset.TotalRows(),
		"duration_seconds": time.Since(start).Seconds(),
	})
}

// finish logs a failed terminal write. A job that was finalized elsewhere
// keeps its status.
func (s *JobService) finish(id string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrJobFinalized):
		s.logger.Infow("job.result_discarded", map[string]any{"job_id": id})
	default:
		s.logger.Errorw("job.update_failed", map[string]any{"job_id": id, "error": err.Error()})
	}
}

func (s *JobService) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()
}

func (s *JobService) untrack(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// CancelJob flags the job for cancellation. Pending jobs are cancelled
// immediately; running ones stop at their next batch boundary.
func (s *JobService) CancelJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, jobs.ErrJobFinalized
	}
	if err := s.jobRepo.RequestCancel(ctx, id); err != nil {
		return nil, err
	}
	if job.Status == domain.JobStatusPending {
		if err := s.jobRepo.CancelJob(ctx, id); err != nil && !errors.Is(err, jobs.ErrJobFinalized) {
			return nil, err
		}
	}

	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.logger.Infow("job.cancel_requested", map[string]any{"job_id": id, "status": string(job.Status)})
	return s.jobRepo.GetJob(ctx, id)
}

func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobRepo.GetJob(ctx, id)
}

func (s *JobService) ListJobs(ctx context.Context, limit int, status string) ([]*domain.Job, error) {
	return s.jobRepo.ListJobs(ctx, limit, status)
}

// Wait polls until the job reaches a terminal status or ctx ends.
func (s *JobService) Wait(ctx context.Context, id string, interval time.Duration) (*domain.Job, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := s.jobRepo.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dataset decodes the stored result of a completed job.
func (s *JobService) Dataset(ctx context.Context, id string) (*domain.Dataset, error) {
	job, err := s.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCompleted, job.Status)
	}
	var ds domain.Dataset
	if err := json.Unmarshal(job.Data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode job data: %w", err)
	}
	return &ds, nil
}

// Export writes a completed job's dataset to w. An empty format falls back
// to the request's output_format, then json.
func (s *JobService) Export(ctx context.Context, id, format string, w io.Writer) (export.Exporter, error) {
	job, err := s.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = requestFormat(job)
	}
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, err
	}
	ds, err := s.Dataset(ctx, id)
	if err != nil {
		return nil, err
	}
	return exporter, exporter.Export(ctx, ds, w)
}

// ExportFormat resolves the format Export would use for a job.
func (s *JobService) ExportFormat(ctx context.Context, id, format string) (export.Exporter, error) {
	if format != "" {
		return export.ForFormat(format)
	}
	job, err := s.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return export.ForFormat(requestFormat(job))
}

func requestFormat(job *domain.Job) string {
	var req domain.GenerationRequest
	if len(job.Request) > 0 && json.Unmarshal(job.Request, &req) == nil && req.Config.OutputFormat != "" {
		return req.Config.OutputFormat
	}
	return domain.OutputFormatJSON
}

func generateSeed() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}
