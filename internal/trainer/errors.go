package trainer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by New when the run cannot start
	// (non-positive epoch count, unusable learning rate, missing component).
	ErrConfiguration = errors.New("trainer: invalid configuration")

	// ErrEmptyData is returned when an epoch yields zero batches.
	ErrEmptyData = errors.New("trainer: epoch yielded no batches")

	// ErrNumerical is returned when a loss or gradient is NaN or infinite.
	ErrNumerical = errors.New("trainer: non-finite value")
)

// RunError reports where a run failed.
//
// Batch is -1 when the failure is not tied to a single batch (empty epoch,
// data source setup, validation, observers).
type RunError struct {
	Epoch int
	Batch int
	Err   error
}

func (e *RunError) Error() string {
	if e.Batch < 0 {
		return fmt.Sprintf("epoch %d: %v", e.Epoch, e.Err)
	}
	return fmt.Sprintf("epoch %d, batch %d: %v", e.Epoch, e.Batch, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
