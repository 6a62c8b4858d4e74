package deploy

import (
	"errors"
	"fmt"
)

// ErrInProgress is returned when a deployment is requested while another one
// holds the application's lock.
var ErrInProgress = errors.New("deployment already in progress")

// ErrSyncFailed marks a dependency-sync failure. It occurs after the tree has
// been replaced: the file state is committed and is deliberately not rolled
// back, leaving a "code updated, environment stale" condition for a human to
// resolve.
var ErrSyncFailed = errors.New("dependency sync failed")

// StageError records the stage a deployment had reached when it failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deployment failed during %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
