package sync

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/odoo"
)

// batchTask runs one record of a batch. label names the record in error lists.
type batchTask struct {
	label string
	run   func(ctx context.Context) error
}

// tally collects per-record outcomes from concurrent workers.
type tally struct {
	mu        sync.Mutex
	res       BatchResult
	maxErrors int
}

func (t *tally) record(label string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.res.Attempted++
	if err == nil {
		t.res.Succeeded++
		return
	}
	t.res.Failed++
	if t.maxErrors <= 0 || len(t.res.Errors) < t.maxErrors {
		t.res.Errors = append(t.res.Errors, label+": "+err.Error())
	}
}

// runBatch executes tasks with at most cfg.Concurrency in flight. Record
// failures are counted and never stop the batch, except authentication
// failures, which cancel every task not yet started. A cancelled parent
// context also stops new tasks; interrupted reports whether any task was
// skipped.
func (e *Engine) runBatch(ctx context.Context, op string, tasks []batchTask) (res BatchResult, interrupted bool) {
	t := &tally{maxErrors: e.cfg.MaxBatchErrors}
	t.res.Errors = []string{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	var skipped sync.Map
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Store(i, true)
				return nil
			}
			err := task.run(gctx)
			t.record(task.label, err)
			if err != nil && odoo.IsAuthError(err) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Log.Error("Batch aborted on authentication failure",
			zap.String("operation", op), zap.Error(err))
		t.res.Aborted = true
	}

	skipped.Range(func(_, _ any) bool {
		interrupted = true
		return false
	})
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Log.Warn("Batch stopped by time budget", zap.String("operation", op))
		interrupted = true
	}
	return t.res, interrupted || t.res.Aborted
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency > 0 {
		return e.cfg.Concurrency
	}
	return defaultConcurrency
}
