package upload

import (
	"errors"
	"time"

	"github.com/photoshelf/go-uploadutils/transport"
	"github.com/photoshelf/go-uploadutils/upload/timeout"
)

// Status classifies a settled batch.
type Status string

const (
	StatusAllSucceeded Status = "all-succeeded"
	StatusPartial      Status = "partial"
	StatusAllFailed    Status = "all-failed"
)

// Reason tags a failed item.
type Reason string

const (
	ReasonNetwork Reason = "network error"
	ReasonServer  Reason = "server error"
	ReasonTimeout Reason = "timeout"
)

// Outcome is the terminal result of one item. Exactly one of Response and Err is meaningful.
type Outcome struct {
	Index    int
	Response transport.Response
	Reason   Reason
	Err      error
	Duration time.Duration
}

// Succeeded ...
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Success is an uploaded item.
type Success struct {
	Index    int
	Response transport.Response
}

// Failure is an item that could not be uploaded.
type Failure struct {
	Index  int
	Reason Reason
	Err    error
}

// Result is the settled batch. Succeeded and Failed are ordered by item index.
type Result struct {
	BatchID   string
	Succeeded []Success
	Failed    []Failure
	Status    Status
	Duration  time.Duration
}

// Total returns the number of items in the batch.
func (r *Result) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// FailedIndices returns the indices of the failed items, for resubmission.
func (r *Result) FailedIndices() []int {
	indices := make([]int, 0, len(r.Failed))
	for _, f := range r.Failed {
		indices = append(indices, f.Index)
	}
	return indices
}

// Responses returns the responses of the succeeded items.
func (r *Result) Responses() []transport.Response {
	responses := make([]transport.Response, 0, len(r.Succeeded))
	for _, s := range r.Succeeded {
		responses = append(responses, s.Response)
	}
	return responses
}

func classify(err error) Reason {
	if errors.Is(err, timeout.ErrTimeout) {
		return ReasonTimeout
	}
	var transportErr *transport.Error
	if errors.As(err, &transportErr) && transportErr.Kind == transport.KindServer {
		return ReasonServer
	}
	return ReasonNetwork
}

func newResult(batchID string, outcomes []Outcome) (*Result, error) {
	result := &Result{BatchID: batchID}
	for _, o := range outcomes {
		if o.Succeeded() {
			result.Succeeded = append(result.Succeeded, Success{Index: o.Index, Response: o.Response})
		} else {
			result.Failed = append(result.Failed, Failure{Index: o.Index, Reason: o.Reason, Err: o.Err})
		}
	}

	switch {
	case len(result.Failed) == 0:
		result.Status = StatusAllSucceeded
		return result, nil
	case len(result.Succeeded) == 0:
		result.Status = StatusAllFailed
	default:
		result.Status = StatusPartial
	}

	return result, &BatchError{
		Status:   result.Status,
		Total:    len(outcomes),
		Failures: result.Failed,
	}
}
