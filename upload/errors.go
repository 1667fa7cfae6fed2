package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is the base of every configuration error. Runs failing with it made no upload.
	ErrInvalidConfig = errors.New("invalid upload configuration")
	// ErrEmptyBatch is returned for a batch without payloads.
	ErrEmptyBatch = fmt.Errorf("%w: empty batch", ErrInvalidConfig)
	// ErrAllFailed matches a *BatchError where no upload succeeded.
	ErrAllFailed = errors.New("all uploads failed")
	// ErrPartialFailure matches a *BatchError where some uploads succeeded.
	ErrPartialFailure = errors.New("some uploads failed")
)

// BatchError reports the failed items of a settled batch.
type BatchError struct {
	Status   Status
	Total    int
	Failures []Failure
}

func (e *BatchError) Error() string {
	if e.Status == StatusAllFailed {
		return fmt.Sprintf("all uploads failed (%d of %d)", len(e.Failures), e.Total)
	}
	return fmt.Sprintf("%d of %d uploads failed", len(e.Failures), e.Total)
}

// Is matches ErrAllFailed or ErrPartialFailure depending on the batch status.
func (e *BatchError) Is(target error) bool {
	switch target {
	case ErrAllFailed:
		return e.Status == StatusAllFailed
	case ErrPartialFailure:
		return e.Status == StatusPartial
	}
	return false
}
