package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisTimeLayout = time.RFC3339Nano

// transitionScript applies field updates to a job hash unless the job is
// missing (-1), terminal (0) or not in the required status (2).
var transitionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'completed' or status == 'failed' or status == 'cancelled' then return 0 end
if ARGV[1] ~= '' and status ~= ARGV[1] then return 2 end
for i = 2, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// RedisRepository stores each job as a hash and indexes ids in a sorted set
// scored by creation time. Hashes expire after ttl; stale index entries are
// pruned on listing.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "tablegen"
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedis connects to url and verifies the server answers.
func OpenRedis(ctx context.Context, url string, ttl time.Duration) (*RedisRepository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisRepository(client, "", ttl), nil
}

func (r *RedisRepository) jobKey(id string) string { return r.prefix + ":job:" + id }
func (r *RedisRepository) indexKey() string        { return r.prefix + ":jobs" }

func (r *RedisRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	fields := map[string]interface{}{
		"id":               job.ID,
		"job_name":         job.Name,
		"status":           string(job.Status),
		"progress":         0,
		"total_rows":       job.TotalRows,
		"config_hash":      job.ConfigHash,
		"request":          string(job.Request),
		"data":             "",
		"error":            "",
		"cancel_requested": 0,
		"created_at":       now.Format(redisTimeLayout),
		"updated_at":       now.Format(redisTimeLayout),
		"completed_at":     "",
	}
	key := r.jobKey(job.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(now.UnixMicro()), Member: job.ID})
		return nil
	})
	return err
}

func (r *RedisRepository) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	vals, err := r.client.HGetAll(ctx, r.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisJob(vals)
}

func (r *RedisRepository) ListJobs(ctx context.Context, limit int, status string) ([]*domain.Job, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Job, 0)
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		job, err := decodeRedisJob(vals)
		if err != nil {
			return nil, err
		}
		if status != "" && string(job.Status) != status {
			continue
		}
		out = append(out, job)
	}
	if len(stale) > 0 {
		_ = r.client.ZRem(ctx, r.indexKey(), stale...).Err()
	}

	// Scores have microsecond resolution; settle ties on the full timestamp.
	sort.SliceStable(out, func(i, j int) bool {
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

func (r *RedisRepository) transition(ctx context.Context, id, required string, terminal bool, fields ...interface{}) error {
	args := append([]interface{}{required}, fields...)
	args = append(args, "updated_at", time.Now().UTC().Format(redisTimeLayout))
	code, err := transitionScript.Run(ctx, r.client, []string{r.jobKey(id)}, args...).Int()
	if err != nil {
		return err
	}
	switch code {
	case -1:
		return ErrNotFound
	case 0:
		return ErrJobFinalized
	}
	if code == 1 && terminal && r.ttl > 0 {
		return r.client.Expire(ctx, r.jobKey(id), r.ttl).Err()
	}
	return nil
}

func (r *RedisRepository) MarkRunning(ctx context.Context, id string) error {
	return r.transition(ctx, id, string(domain.JobStatusPending), false, "status", string(domain.JobStatusRunning))
}

func (r *RedisRepository) SetTotal(ctx context.Context, id string, total int64) error {
	return r.transition(ctx, id, "", false, "total_rows", total)
}

func (r *RedisRepository) UpdateProgress(ctx context.Context, id string, percent int) error {
	return r.transition(ctx, id, "", false, "progress", clampProgress(percent))
}

func (r *RedisRepository) CompleteJob(ctx context.Context, id string, data json.RawMessage) error {
	return r.transition(ctx, id, "", true,
		"status", string(domain.JobStatusCompleted),
		"progress", 100,
		"data", string(data),
		"completed_at", time.Now().UTC().Format(redisTimeLayout),
	)
}

func (r *RedisRepository) FailJob(ctx context.Context, id string, message string) error {
	return r.transition(ctx, id, "", true,
		"status", string(domain.JobStatusFailed),
		"error", message,
		"completed_at", time.Now().UTC().Format(redisTimeLayout),
	)
}

func (r *RedisRepository) CancelJob(ctx context.Context, id string) error {
	return r.transition(ctx, id, "", true,
		"status", string(domain.JobStatusCancelled),
		"cancel_requested", 1,
		"completed_at", time.Now().UTC().Format(redisTimeLayout),
	)
}

func (r *RedisRepository) RequestCancel(ctx context.Context, id string) error {
	return r.transition(ctx, id, "", false, "cancel_requested", 1)
}

func (r *RedisRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	v, err := r.client.HGet(ctx, r.jobKey(id), "cancel_requested").Result()
	if errors.Is(err, redis.Nil) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (r *RedisRepository) Close() error { return r.client.Close() }

func decodeRedisJob(vals map[string]string) (*domain.Job, error) {
	job := &domain.Job{
		ID:              vals["id"],
		Name:            vals["job_name"],
		Status:          domain.JobStatus(vals["status"]),
		ConfigHash:      vals["config_hash"],
		Error:           vals["error"],
		CancelRequested: vals["cancel_requested"] == "1",
	}
	var err error
	if job.Progress, err = atoiField(vals, "progress"); err != nil {
		return nil, err
	}
	total, err := atoiField(vals, "total_rows")
	if err != nil {
		return nil, err
	}
	job.TotalRows = int64(total)
	if s := vals["request"]; s != "" {
		job.Request = json.RawMessage(s)
	}
	if s := vals["data"]; s != "" {
		job.Data = json.RawMessage(s)
	}
	if job.CreatedAt, err = time.Parse(redisTimeLayout, vals["created_at"]); err != nil {
		return nil, fmt.Errorf("invalid created_at for job %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(redisTimeLayout, vals["updated_at"]); err != nil {
		return nil, fmt.Errorf("invalid updated_at for job %s: %w", job.ID, err)
	}
	if s := vals["completed_at"]; s != "" {
		t, err := time.Parse(redisTimeLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid completed_at for job %s: %w", job.ID, err)
		}
		job.CompletedAt = &t
	}
	return job, nil
}

func atoiField(vals map[string]string, key string) (int, error) {
	s := vals[key]
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
