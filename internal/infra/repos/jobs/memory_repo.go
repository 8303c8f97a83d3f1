package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmrzaf/tablegen/internal/domain"
)

// MemoryRepository keeps jobs in process. Callers always receive copies.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryRepository) CreateJob(_ context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *MemoryRepository) GetJob(_ context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (r *MemoryRepository) ListJobs(_ context.Context, limit int, status string) ([]*domain.Job, error) {
	r.mu.RLock()
	out := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if status != "" && string(job.Status) != status {
			continue
		}
		out = append(out, copyJob(job))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// update applies fn to a non-terminal job.
func (r *MemoryRepository) update(id string, fn func(job *domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrJobFinalized
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) MarkRunning(_ context.Context, id string) error {
	return r.update(id, func(job *domain.Job) {
		if job.Status == domain.JobStatusPending {
			job.Status = domain.JobStatusRunning
		}
	})
}

func (r *MemoryRepository) SetTotal(_ context.Context, id string, total int64) error {
	return r.update(id, func(job *domain.Job) { job.TotalRows = total })
}

func (r *MemoryRepository) UpdateProgress(_ context.Context, id string, percent int) error {
	return r.update(id, func(job *domain.Job) { job.Progress = clampProgress(percent) })
}

func (r *MemoryRepository) CompleteJob(_ context.Context, id string, data json.RawMessage) error {
	return r.update(id, func(job *domain.Job) {
		now := time.Now().UTC()
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.Data = append(json.RawMessage(nil), data...)
		job.CompletedAt = &now
	})
}

func (r *MemoryRepository) FailJob(_ context.Context, id string, message string) error {
	return r.update(id, func(job *domain.Job) {
		now := time.Now().UTC()
		job.Status = domain.JobStatusFailed
		job.Error = message
		job.CompletedAt = &now
	})
}

func (r *MemoryRepository) CancelJob(_ context.Context, id string) error {
	return r.update(id, func(job *domain.Job) {
		now := time.Now().UTC()
		job.Status = domain.JobStatusCancelled
		job.CancelRequested = true
		job.CompletedAt = &now
	})
}

func (r *MemoryRepository) RequestCancel(_ context.Context, id string) error {
	return r.update(id, func(job *domain.Job) { job.CancelRequested = true })
}

func (r *MemoryRepository) IsCancelRequested(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	return job.CancelRequested, nil
}

func (r *MemoryRepository) Close() error { return nil }

func copyJob(job *domain.Job) *domain.Job {
	c := *job
	c.Request = append(json.RawMessage(nil), job.Request...)
	c.Data = append(json.RawMessage(nil), job.Data...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
