package engine

import (
	"errors"
	"fmt"
)

// SyncError reports a failed round trip.
//
// The queue is never modified by a failed batch; SyncError only tells the
// caller what went wrong and whether automatic sync has stopped.
type SyncError struct {
	// Code identifies the failure category.
	Code SyncErrorCode

	// Batched is the number of submissions that were sent.
	Batched int

	// Err is the underlying remote error.
	Err error
}

// SyncErrorCode categorizes sync failures.
type SyncErrorCode string

const (
	// ErrCodeBatchFailed indicates the batch request failed.
	ErrCodeBatchFailed SyncErrorCode = "BATCH_FAILED"

	// ErrCodeAuthRejected indicates the session was rejected and sync halted.
	ErrCodeAuthRejected SyncErrorCode = "AUTH_REJECTED"

	// ErrCodeQueueRead indicates the local queue could not be read.
	ErrCodeQueueRead SyncErrorCode = "QUEUE_READ"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Batched > 0 {
		return fmt.Sprintf("%s: %d submissions: %v", e.Code, e.Batched, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsHalted returns true if the error stopped automatic sync.
// Uses errors.As to handle wrapped errors.
func IsHalted(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeAuthRejected
	}
	return false
}

// ErrSyncInFlight is returned when a queued item is mutated while a sync
// round trip is running.
var ErrSyncInFlight = errors.New("sync in flight")
