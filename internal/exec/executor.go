package exec

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/logging"
	"github.com/mmrzaf/tablegen/internal/registry"
	"github.com/mmrzaf/tablegen/internal/validation"
)

// ErrCancelled is returned when a job stops because cancellation was
// requested. Partial results are discarded.
var ErrCancelled = errors.New("job cancelled")

// StatusSink receives progress for a job and answers cancellation polls.
type StatusSink interface {
	SetTotal(ctx context.Context, id string, total int64) error
	UpdateProgress(ctx context.Context, id string, percent int) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
}

const DefaultBatchSize = 20

type Options struct {
	BatchSize int
	// Yield is the pause taken at each batch boundary. Zero only yields the
	// processor.
	Yield time.Duration
}

type Executor struct {
	genRegistry *registry.GeneratorRegistry
	sink        StatusSink
	logger      *logging.Logger
	opts        Options
}

func NewExecutor(genRegistry *registry.GeneratorRegistry, sink StatusSink, logger *logging.Logger, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{genRegistry: genRegistry, sink: sink, logger: logger.WithComponent("executor"), opts: opts}
}

// Execute generates every table of req. With a non-empty jobID, progress is
// pushed to the sink and cancellation is polled before each batch.
func (e *Executor) Execute(ctx context.Context, req *domain.GenerationRequest, jobID string, seed int64) (*domain.Dataset, error) {
	locale, err := validation.ParseLocale(req.Config.Locale)
	if err != nil {
		return nil, err
	}

	res := validation.ResolveOrder(req.Tables)
	if res.HasCycle() {
		e.logger.Warnw("resolver.cycle_detected", map[string]any{
			"job_id":     jobID,
			"unresolved": validation.OrderNames(req.Tables, res.Unresolved),
		})
	}

	byID := make(map[string]int, len(req.Tables))
	var totalRows int64
	for i, t := range req.Tables {
		byID[t.ID] = i
		totalRows += int64(t.RowsCount)
	}

	tracking := jobID != "" && e.sink != nil
	if tracking {
		if err := e.sink.SetTotal(ctx, jobID, totalRows); err != nil {
			return nil, fmt.Errorf("failed to set total: %w", err)
		}
		if err := e.sink.UpdateProgress(ctx, jobID, 0); err != nil {
			return nil, fmt.Errorf("failed to report progress: %w", err)
		}
	}

	tables := newGeneratedTables()
	dataset := &domain.Dataset{Tables: make([]domain.TableData, 0, len(res.Order))}
	var done int64
	lastProgress := 0

	for _, id := range res.Order {
		idx := byID[id]
		spec := &req.Tables[idx]
		start := time.Now()

		rng := rand.New(rand.NewSource(seed + int64(idx)))
		builder := newRowBuilder(e.genRegistry, spec, tables, rng, req.Config.GlobalContext, locale)
		rows := make([]domain.Row, 0, spec.RowsCount)

		for len(rows) < spec.RowsCount {
			if err := e.checkpoint(ctx, jobID, tracking); err != nil {
				return nil, err
			}

			n := spec.RowsCount - len(rows)
			if n > e.opts.BatchSize {
				n = e.opts.BatchSize
			}
			for i := 0; i < n; i++ {
				rows = append(rows, builder.Build(ctx))
			}

			done += int64(n)
			if tracking {
				if p := batchProgress(done, totalRows); p > lastProgress {
					if err := e.sink.UpdateProgress(ctx, jobID, p); err != nil {
						return nil, fmt.Errorf("failed to report progress: %w", err)
					}
					lastProgress = p
				}
			}
		}

		tables.add(spec.ID, rows)
		dataset.Tables = append(dataset.Tables, domain.TableData{
			ID:      spec.ID,
			Name:    spec.Name,
			Columns: fieldNames(spec),
			Rows:    rows,
		})
		e.logger.Debugw("table.completed", map[string]any{
			"job_id":           jobID,
			"table":            spec.Name,
			"rows":             len(rows),
			"duration_seconds": time.Since(start).Seconds(),
		})
	}

	if err := e.checkpoint(ctx, jobID, tracking); err != nil {
		return nil, err
	}
	return dataset, nil
}

// checkpoint is the per-batch suspension point: it yields, then reports
// ErrCancelled if the context is done or the job was asked to stop.
func (e *Executor) checkpoint(ctx context.Context, jobID string, tracking bool) error {
	if e.opts.Yield > 0 {
		t := time.NewTimer(e.opts.Yield)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	} else {
		runtime.Gosched()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if !tracking {
		return nil
	}
	requested, err := e.sink.IsCancelRequested(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to poll cancellation: %w", err)
	}
	if requested {
		return ErrCancelled
	}
	return nil
}

// batchProgress stays below 100 until the job is completed by its owner.
func batchProgress(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(done * 100 / total)
	if p > 99 {
		p = 99
	}
	return p
}

func fieldNames(t *domain.TableSpec) []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}
