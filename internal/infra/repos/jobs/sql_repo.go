package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmrzaf/tablegen/internal/domain"
)

// sqlRepository holds the queries shared by the SQLite and Postgres stores.
// Queries are written with '?' placeholders and rebound per driver.
type sqlRepository struct {
	db       *sql.DB
	numbered bool
}

const jobColumns = `id, job_name, status, progress, total_rows, config_hash, request, data, error,
	cancel_requested, created_at, updated_at, completed_at`

const notTerminal = `status NOT IN ('completed', 'failed', 'cancelled')`

type migration struct {
	v  int
	up string
}

var jobMigrations = []migration{
	{1, `CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_name TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		total_rows BIGINT NOT NULL DEFAULT 0,
		config_hash TEXT,
		request TEXT,
		data TEXT,
		error TEXT,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`},
	{2, `CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`},
	{3, `CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`},
}

func (r *sqlRepository) bind(query string) string {
	if !r.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlRepository) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.bind(query), args...)
}

func (r *sqlRepository) applyMigrations(ctx context.Context) error {
	if _, err := r.exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var cur int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&cur); err != nil {
		return err
	}
	for _, m := range jobMigrations {
		if cur >= m.v {
			continue
		}
		if _, err := r.exec(ctx, m.up); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.v, err)
		}
		if _, err := r.exec(ctx, `INSERT INTO schema_migrations(version) VALUES (?)`, m.v); err != nil {
			return err
		}
		cur = m.v
	}
	return nil
}

func (r *sqlRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.exec(ctx, `
		INSERT INTO jobs (id, job_name, status, progress, total_rows, config_hash, request,
			cancel_requested, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, 0, ?, ?)`,
		job.ID, job.Name, job.Status, job.TotalRows, job.ConfigHash, nullString(string(job.Request)), now, now,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s rowScanner) (*domain.Job, error) {
	var job domain.Job
	var status string
	var hash, request, data, errStr sql.NullString
	var cancel int
	var completedAt sql.NullTime

	if err := s.Scan(
		&job.ID, &job.Name, &status, &job.Progress, &job.TotalRows, &hash, &request, &data, &errStr,
		&cancel, &job.CreatedAt, &job.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.ConfigHash = hash.String
	if request.Valid && request.String != "" {
		job.Request = json.RawMessage(request.String)
	}
	if data.Valid && data.String != "" {
		job.Data = json.RawMessage(data.String)
	}
	job.Error = errStr.String
	job.CancelRequested = cancel != 0
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func (r *sqlRepository) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, r.bind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (r *sqlRepository) ListJobs(ctx context.Context, limit int, status string) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]interface{}, 0)
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// transition runs a guarded UPDATE and explains a zero-row result.
func (r *sqlRepository) transition(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobFinalized
	}
	return nil
}

func (r *sqlRepository) MarkRunning(ctx context.Context, id string) error {
	return r.transition(ctx, id,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.JobStatusRunning, time.Now().UTC(), id, domain.JobStatusPending)
}

func (r *sqlRepository) SetTotal(ctx context.Context, id string, total int64) error {
	return r.transition(ctx, id,
		`UPDATE jobs SET total_rows = ?, updated_at = ? WHERE id = ? AND `+notTerminal,
		total, time.Now().UTC(), id)
}

func (r *sqlRepository) UpdateProgress(ctx context.Context, id string, percent int) error {
	return r.transition(ctx, id,
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ? AND `+notTerminal,
		clampProgress(percent), time.Now().UTC(), id)
}

func (r *sqlRepository) CompleteJob(ctx context.Context, id string, data json.RawMessage) error {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		`UPDATE jobs SET status = ?, progress = 100, data = ?, updated_at = ?, completed_at = ? WHERE id = ? AND `+notTerminal,
		domain.JobStatusCompleted, string(data), now, now, id)
}

func (r *sqlRepository) FailJob(ctx context.Context, id string, message string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ? AND `+notTerminal,
		domain.JobStatusFailed, message, now, now, id)
}

func (r *sqlRepository) CancelJob(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		`UPDATE jobs SET status = ?, cancel_requested = 1, updated_at = ?, completed_at = ? WHERE id = ? AND `+notTerminal,
		domain.JobStatusCancelled, now, now, id)
}

func (r *sqlRepository) RequestCancel(ctx context.Context, id string) error {
	return r.transition(ctx, id,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND `+notTerminal,
		time.Now().UTC(), id)
}

func (r *sqlRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var cancel int
	err := r.db.QueryRowContext(ctx, r.bind(`SELECT cancel_requested FROM jobs WHERE id = ?`), id).Scan(&cancel)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return cancel != 0, nil
}

func (r *sqlRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
