package syncer

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a sync is triggered while another runs.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrNoData is the fetch-stage cause when every endpoint returned no rows.
var ErrNoData = errors.New("no data returned by any endpoint")

// SyncError reports the stage a run failed at. The store still holds the
// previous generation.
type SyncError struct {
	Stage State
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed while %s: %v", e.Stage, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// Failure is the {stage, cause} pair surfaced to presentation layers.
type Failure struct {
	Stage State  `json:"stage"`
	Cause string `json:"cause"`
}

// AsFailure extracts the stage and cause from err. Errors that are not a
// *SyncError are reported without a stage.
func AsFailure(err error) Failure {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return Failure{Stage: syncErr.Stage, Cause: syncErr.Cause.Error()}
	}
	return Failure{Cause: err.Error()}
}
