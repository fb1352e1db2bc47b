package journal

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned when an item already has an outcome in the run
var ErrDuplicate = errors.New("outcome already recorded")

// Status is the terminal status of an item
type Status string

const (
	StatusReady  Status = "ready"
	StatusFailed Status = "failed"
)

// Record is one terminal outcome of an upload task
type Record struct {
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	URI       string    `json:"uri,omitempty"`
	MIMEType  string    `json:"mime_type,omitempty"`
	Polls     int       `json:"polls"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists per-run outcomes
type Store interface {
	Record(ctx context.Context, rec *Record) error
	List(ctx context.Context, runID string) ([]*Record, error)
	Close() error
}
