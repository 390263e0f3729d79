package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
	"golang.org/x/sync/semaphore"
)

// DueWorkRepository lists executions that should be making progress but
// have nothing in flight.
type DueWorkRepository interface {
	ListRunnableExecutions(ctx context.Context) ([]domain.Execution, error)
	ListPendingActions(ctx context.Context, executionID domain.ExecutionID) ([]domain.ScheduledAction, error)
}

// DueWorkerConfig bounds how much scheduling a single tick may fan out.
type DueWorkerConfig struct {
	Tick          time.Duration
	MaxConcurrent int64
}

// DueActionWorker is the self-healing tick: any execution left in running
// with no outstanding work (after an operator retry, a crash between save
// and schedule, ...) gets pushed through the engine again. Work fans out
// through a weighted semaphore so a large backlog cannot stampede.
type DueActionWorker struct {
	logger *slog.Logger
	repo   DueWorkRepository
	engine *ExecutionEngine
	queue  chan domain.Execution
	sem    *semaphore.Weighted
	tick   time.Duration
}

func NewDueActionWorker(logger *slog.Logger, repo DueWorkRepository, engine *ExecutionEngine, cfg DueWorkerConfig) *DueActionWorker {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	return &DueActionWorker{
		logger: logger,
		repo:   repo,
		engine: engine,
		queue:  make(chan domain.Execution, 100),
		sem:    semaphore.NewWeighted(limit),
		tick:   cfg.Tick,
	}
}

// Run starts the scan loop and the consumer. Blocks until ctx is
// cancelled.
func (w *DueActionWorker) Run(ctx context.Context) error {
	w.logger.Info("due-action worker started", "tick", w.tick)

	go w.consume(ctx)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("due-action worker stopped")
			return nil
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *DueActionWorker) scan(ctx context.Context) {
	execs, err := w.repo.ListRunnableExecutions(ctx)
	if err != nil {
		w.logger.Error("failed to list runnable executions", "error", err)
		return
	}

	for _, exec := range execs {
		pending, err := w.repo.ListPendingActions(ctx, exec.ID)
		if err != nil {
			w.logger.Error("failed to list pending actions", "execution_id", exec.ID, "error", err)
			continue
		}
		if len(pending) > 0 {
			continue
		}

		select {
		case w.queue <- exec:
		default:
			// Queue full; the next tick will pick it up again.
			return
		}
	}
}

func (w *DueActionWorker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case exec := <-w.queue:
			if err := w.sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func(e domain.Execution) {
				defer w.sem.Release(1)
				if err := w.engine.ProcessStep(ctx, &e); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("failed to process due execution", "execution_id", e.ID, "error", err)
				}
			}(exec)
		}
	}
}
