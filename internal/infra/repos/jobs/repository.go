package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mmrzaf/tablegen/internal/domain"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrJobFinalized is returned when a transition targets a job that is
	// already completed, failed or cancelled.
	ErrJobFinalized = errors.New("job already finalized")
)

// Repository is the job status store. A single job has one writer (its
// worker) and any number of readers plus an external canceller.
type Repository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, limit int, status string) ([]*domain.Job, error)

	MarkRunning(ctx context.Context, id string) error
	SetTotal(ctx context.Context, id string, total int64) error
	UpdateProgress(ctx context.Context, id string, percent int) error
	CompleteJob(ctx context.Context, id string, data json.RawMessage) error
	FailJob(ctx context.Context, id string, message string) error
	CancelJob(ctx context.Context, id string) error

	// RequestCancel only sets the flag; the worker observes it between
	// batches.
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)

	Close() error
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
