package batch

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable signals an infrastructure-level fault: the store is
// unreachable and no tasks were attempted.
var ErrStorageUnavailable = errors.New("storage unavailable")

// TaskError reports which pipeline task failed and why. The pipeline halts
// at the first failing task; earlier committed tasks are not rolled back.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
