package worker

import (
	"context"
	"sync"

	"codeguard/internal/metrics"
	"codeguard/internal/progress"

	"go.uber.org/zap"
)

// Pool schedules upload tasks under a concurrency limiter
type Pool struct {
	limiter   *Limiter
	processor *TaskProcessor
	progress  progress.Reporter
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewPool creates a new scheduling pool
func NewPool(
	limiter *Limiter,
	processor *TaskProcessor,
	reporter progress.Reporter,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Pool{
		limiter:   limiter,
		processor: processor,
		progress:  reporter,
		metrics:   metricsCollector,
		logger:    logger,
	}
}

// Run schedules one task per item and waits until every task is terminal.
// results[i] is the outcome of tasks[i]. A slot is acquired before each task
// is started, so at most the limiter's capacity is in flight. If ctx is
// cancelled, tasks not yet scheduled fail at the schedule stage.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	p.progress.Start(len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		if err := p.acquire(ctx); err != nil {
			p.logger.Warn("Scheduling stopped",
				zap.Int("scheduled", i),
				zap.Int("remaining", len(tasks)-i),
				zap.Error(err),
			)
			for j := i; j < len(tasks); j++ {
				results[j] = p.processor.Abandon(ctx, tasks[j], err)
				p.progress.Done(false, 0)
			}
			break
		}

		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer p.release()

			res := p.processor.Process(ctx, task)
			results[i] = res
			p.progress.Done(res.OK(), task.Size)
		}(i, task)

		p.progress.Advance()
	}

	wg.Wait()
	p.progress.Finish()

	return results
}

func (p *Pool) acquire(ctx context.Context) error {
	// a done context may still win a free slot in the semaphore
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}
	p.metrics.IncInflight()
	return nil
}

func (p *Pool) release() {
	p.metrics.DecInflight()
	p.limiter.Release()
}
