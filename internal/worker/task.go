package worker

import (
	"time"

	"codeguard/internal/storage"
)

// State is the lifecycle position of a single upload task
type State string

const (
	StatePending       State = "pending"
	StateUploading     State = "uploading"
	StateAwaitingReady State = "awaiting_ready"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Task is one enumerated input file
type Task struct {
	Index int    `json:"index"`
	Path  string `json:"path"` // absolute path, identity of the item
	Rel   string `json:"rel"`  // slash-separated path relative to the scan root
	Size  int64  `json:"size"`
}

func (t Task) source() storage.Source {
	return storage.Source{Path: t.Path, Key: t.Rel, Size: t.Size}
}

// Handle references a ready remote asset
type Handle struct {
	Name     string `json:"name" yaml:"name"`
	URI      string `json:"uri" yaml:"uri"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
}

// Result is the terminal outcome of one task
type Result struct {
	Task     Task
	State    State
	Handle   Handle // only set when State is StateReady
	Polls    int    // status observations, including the one returned by the upload
	Waits    int    // poll interval delays
	Attempts int    // upload attempts
	Err      *TaskError
	Duration time.Duration
}

// OK reports whether the task reached the ready state.
func (r Result) OK() bool {
	return r.State == StateReady
}

// Config contains worker configuration
type Config struct {
	PollInterval time.Duration
	ReadyTimeout time.Duration // zero disables the readiness deadline
	Retries      int           // maximum attempts per remote call
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	RunID        string
}

// DefaultConfig mirrors the command line defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		ReadyTimeout: 10 * time.Minute,
		Retries:      3,
		RetryBackoff: 500 * time.Millisecond,
		MaxBackoff:   10 * time.Second,
	}
}
