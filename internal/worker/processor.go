package worker

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"time"

	"codeguard/internal/journal"
	"codeguard/internal/metrics"
	"codeguard/internal/storage"

	"go.uber.org/zap"
)

// TaskProcessor drives a single task from pending to a terminal state
type TaskProcessor struct {
	config  Config
	store   storage.Store
	journal journal.Store
	metrics *metrics.Collector
	logger  *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewTaskProcessor creates a processor. journalStore may be nil.
func NewTaskProcessor(
	config Config,
	store storage.Store,
	journalStore journal.Store,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *TaskProcessor {
	return &TaskProcessor{
		config:  config,
		store:   store,
		journal: journalStore,
		metrics: metricsCollector,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Process uploads the task's file and polls until the asset is ready.
// It always returns a terminal Result.
func (p *TaskProcessor) Process(ctx context.Context, task Task) Result {
	startTime := time.Now()
	logger := p.logger.With(zap.String("path", task.Rel))
	res := Result{Task: task, State: StatePending}

	p.transition(logger, &res, StateUploading)

	var prov storage.Provisional
	attempts, err := p.withRetry(ctx, StageUpload, logger, func() error {
		var err error
		prov, err = p.store.Upload(ctx, task.source())
		return err
	})
	res.Attempts = attempts
	if err != nil {
		return p.fail(ctx, logger, res, startTime, newTaskError(task.Path, StageUpload, ErrUpload, err))
	}

	p.transition(logger, &res, StateAwaitingReady)
	res.Polls = 1

	readyCtx := ctx
	if p.config.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, p.config.ReadyTimeout)
		defer cancel()
	}

	for {
		switch prov.State {
		case storage.StateActive:
			res.Handle = Handle{Name: prov.Name, URI: prov.URI, MIMEType: prov.MIMEType}
			return p.succeed(ctx, logger, res, startTime)
		case storage.StateFailed:
			return p.fail(ctx, logger, res, startTime, newTaskError(task.Path, StageReady, ErrRemoteFailed, nil))
		}

		if err := p.sleep(readyCtx, p.config.PollInterval); err != nil {
			return p.fail(ctx, logger, res, startTime, p.pollError(ctx, task, err))
		}
		res.Waits++

		name := prov.Name
		_, err := p.withRetry(readyCtx, StagePoll, logger, func() error {
			p.metrics.IncPoll()
			var err error
			prov, err = p.store.Status(readyCtx, name)
			return err
		})
		if err != nil {
			return p.fail(ctx, logger, res, startTime, p.pollError(ctx, task, err))
		}
		res.Polls++

		logger.Debug("Polled upload status",
			zap.String("state", string(prov.State)),
			zap.Int("polls", res.Polls),
		)
	}
}

// Abandon produces the terminal result of a task that was never scheduled.
func (p *TaskProcessor) Abandon(ctx context.Context, task Task, cause error) Result {
	res := Result{Task: task, State: StatePending}
	logger := p.logger.With(zap.String("path", task.Rel))
	return p.fail(ctx, logger, res, time.Now(), newTaskError(task.Path, StageSchedule, ErrNotScheduled, cause))
}

// pollError separates cancellation of the run from the readiness deadline
func (p *TaskProcessor) pollError(ctx context.Context, task Task, err error) *TaskError {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return newTaskError(task.Path, StageReady, ErrReadinessTimeout, nil)
	}
	return newTaskError(task.Path, StagePoll, ErrPoll, err)
}

func (p *TaskProcessor) transition(logger *zap.Logger, res *Result, to State) {
	logger.Debug("Task state changed",
		zap.String("from", string(res.State)),
		zap.String("to", string(to)),
	)
	res.State = to
}

func (p *TaskProcessor) succeed(ctx context.Context, logger *zap.Logger, res Result, startTime time.Time) Result {
	p.transition(logger, &res, StateReady)
	res.Duration = time.Since(startTime)

	p.metrics.IncResult(string(StateReady))
	p.metrics.ObserveDuration(res.Duration)
	p.record(ctx, logger, &journal.Record{
		RunID:    p.config.RunID,
		Path:     res.Task.Path,
		Status:   journal.StatusReady,
		URI:      res.Handle.URI,
		MIMEType: res.Handle.MIMEType,
		Polls:    res.Polls,
		Attempts: res.Attempts,
	})

	logger.Debug("Upload ready",
		zap.String("uri", res.Handle.URI),
		zap.Int("polls", res.Polls),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (p *TaskProcessor) fail(ctx context.Context, logger *zap.Logger, res Result, startTime time.Time, taskErr *TaskError) Result {
	p.transition(logger, &res, StateFailed)
	res.Err = taskErr
	res.Duration = time.Since(startTime)

	p.metrics.IncResult(string(StateFailed))
	p.metrics.ObserveDuration(res.Duration)
	p.record(ctx, logger, &journal.Record{
		RunID:     p.config.RunID,
		Path:      res.Task.Path,
		Status:    journal.StatusFailed,
		Stage:     string(taskErr.Stage),
		Polls:     res.Polls,
		Attempts:  res.Attempts,
		LastError: taskErr.Err.Error(),
	})

	logger.Warn("Upload failed",
		zap.String("stage", string(taskErr.Stage)),
		zap.Int("attempts", res.Attempts),
		zap.Int("polls", res.Polls),
		zap.Error(taskErr.Err),
	)
	return res
}

func (p *TaskProcessor) record(ctx context.Context, logger *zap.Logger, rec *journal.Record) {
	if p.journal == nil {
		return
	}
	// the outcome is written even when the run is being cancelled
	if err := p.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("Failed to record outcome", zap.Error(err))
	}
}

// withRetry runs op until it succeeds, fails with a non-transient error or
// the attempt budget is spent. It returns the number of attempts made.
func (p *TaskProcessor) withRetry(ctx context.Context, stage Stage, logger *zap.Logger, op func() error) (int, error) {
	maxAttempts := p.config.Retries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || ctx.Err() != nil || !isRetriableError(err) {
			return attempt, err
		}

		p.metrics.IncRetry(string(stage))
		backoff := p.calculateBackoff(attempt)
		logger.Debug("Remote call failed, retrying",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		if serr := p.sleep(ctx, backoff); serr != nil {
			return attempt, err
		}
	}
}

func (p *TaskProcessor) calculateBackoff(attempt int) time.Duration {
	backoff := p.config.RetryBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
	if p.config.MaxBackoff > 0 && backoff > p.config.MaxBackoff {
		return p.config.MaxBackoff
	}
	return backoff
}

func isRetriableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// Check for network-related errors
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "eof") ||
		// quota and HTTP 5xx server errors
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
