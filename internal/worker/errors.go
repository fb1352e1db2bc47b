package worker

import (
	"errors"
	"fmt"
)

// Stage names the step of a task that failed
type Stage string

const (
	StageSchedule Stage = "schedule"
	StageUpload   Stage = "upload"
	StagePoll     Stage = "poll"
	StageReady    Stage = "ready"
)

var (
	ErrUpload           = errors.New("upload failed")
	ErrPoll             = errors.New("status poll failed")
	ErrRemoteFailed     = errors.New("remote processing failed")
	ErrReadinessTimeout = errors.New("asset did not become ready in time")
	ErrNotScheduled     = errors.New("task was not scheduled")
)

// TaskError tags a failure with the item and stage it happened in
type TaskError struct {
	Path  string
	Stage Stage
	Err   error
}

func newTaskError(path string, stage Stage, kind, cause error) *TaskError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &TaskError{Path: path, Stage: stage, Err: err}
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s (stage %s): %v", e.Path, e.Stage, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
