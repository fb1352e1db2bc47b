// Package aggregate turns per-task results into the ordered batch handed to
// the analysis step.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"codeguard/internal/worker"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Policy decides what happens to a batch that contains failed tasks
type Policy string

const (
	// PolicyAbort discards the batch if any task failed.
	PolicyAbort Policy = "abort"
	// PolicySkip drops failed tasks and continues with the rest.
	PolicySkip Policy = "skip"
	// PolicyPropagate returns the successful part of the batch together
	// with an error describing the failures.
	PolicyPropagate Policy = "propagate"
)

// ErrBatchFailed is wrapped by every error caused by failed tasks
var ErrBatchFailed = errors.New("batch contains failed uploads")

// ParsePolicy validates a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAbort, PolicySkip, PolicyPropagate:
		return p, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want abort, skip or propagate)", s)
}

// Entry pairs a ready handle with the file it came from
type Entry struct {
	Index  int           `yaml:"index"`
	Path   string        `yaml:"path"`
	Rel    string        `yaml:"rel"`
	Handle worker.Handle `yaml:"handle"`
}

// Batch is the ordered set of ready handles from one run
type Batch struct {
	Entries []Entry `yaml:"entries"`
}

// Len returns the number of entries
func (b Batch) Len() int { return len(b.Entries) }

// Empty reports whether the batch has no entries
func (b Batch) Empty() bool { return len(b.Entries) == 0 }

// Handles returns the handles in batch order
func (b Batch) Handles() []worker.Handle {
	handles := make([]worker.Handle, len(b.Entries))
	for i, e := range b.Entries {
		handles[i] = e.Handle
	}
	return handles
}

// Aggregator collects terminal results into a Batch
type Aggregator struct {
	policy Policy
	logger *zap.Logger
}

// New creates an aggregator applying policy to failed tasks
func New(policy Policy, logger *zap.Logger) *Aggregator {
	return &Aggregator{policy: policy, logger: logger}
}

// Collect builds the batch from results, ordered by task index. Failed tasks
// are handled according to the aggregator's policy; with PolicyAbort the
// returned batch is empty whenever an error is returned.
func (a *Aggregator) Collect(results []worker.Result) (Batch, error) {
	ordered := append([]worker.Result(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Task.Index < ordered[j].Task.Index
	})

	var batch Batch
	var failures error
	failed := 0

	for _, res := range ordered {
		if res.OK() {
			batch.Entries = append(batch.Entries, Entry{
				Index:  res.Task.Index,
				Path:   res.Task.Path,
				Rel:    res.Task.Rel,
				Handle: res.Handle,
			})
			continue
		}

		failed++
		var err error = res.Err
		if res.Err == nil {
			err = fmt.Errorf("%s: ended in state %s", res.Task.Path, res.State)
		}
		failures = multierr.Append(failures, err)
	}

	if failed == 0 {
		return batch, nil
	}

	switch a.policy {
	case PolicySkip:
		for _, err := range multierr.Errors(failures) {
			a.logger.Warn("Skipping failed upload", zap.Error(err))
		}
		a.logger.Info("Continuing with partial batch",
			zap.Int("ready", batch.Len()),
			zap.Int("failed", failed),
		)
		return batch, nil
	case PolicyPropagate:
		return batch, fmt.Errorf("%w: %d of %d failed: %w", ErrBatchFailed, failed, len(ordered), failures)
	default:
		return Batch{}, fmt.Errorf("%w: %d of %d failed: %w", ErrBatchFailed, failed, len(ordered), failures)
	}
}
