package analysis

import (
	"context"
	"errors"

	"codeguard/internal/aggregate"
)

// ErrEmptyBatch is returned when there is nothing to analyze
var ErrEmptyBatch = errors.New("batch has no attachments")

// Analyzer consumes a ready batch and returns a textual report
type Analyzer interface {
	Analyze(ctx context.Context, batch aggregate.Batch) (string, error)
}
