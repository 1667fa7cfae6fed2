// Package photostore is the session-level owner of photo uploads: it runs
// batches, remembers the last uploaded photo IDs and reports summaries.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/photoshelf/go-uploadutils/payload"
	"github.com/photoshelf/go-uploadutils/upload"
)

// Runner runs one upload batch.
type Runner interface {
	Run(ctx context.Context, payloads []payload.Payload, cfg upload.Config) (*upload.Result, error)
}

// Store ...
type Store struct {
	runner   Runner
	notifier Notifier
	logger   log.Logger

	mu                sync.Mutex
	uploading         int
	lastSuccessfulIDs []string
}

// New creates a store. notifier may be nil.
func New(runner Runner, notifier Notifier, logger log.Logger) *Store {
	return &Store{
		runner:   runner,
		notifier: notifier,
		logger:   logger,
	}
}

// IsUploading reports whether any batch is running.
func (s *Store) IsUploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uploading > 0
}

// LastSuccessfulIDs returns the photo IDs of the last batch that uploaded anything.
func (s *Store) LastSuccessfulIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.lastSuccessfulIDs...)
}

// UploadPhotos runs a batch and publishes its summary.
func (s *Store) UploadPhotos(ctx context.Context, payloads []payload.Payload, cfg upload.Config) (*upload.Result, error) {
	result, err := s.run(ctx, payloads, cfg)
	s.finish(result, err)
	return result, err
}

// RetryFailed resubmits the failed items of previous, a result for payloads.
// The returned result covers the whole original batch, with indices into payloads.
// If the resubmission is rejected before uploading, previous is returned with the error.
func (s *Store) RetryFailed(ctx context.Context, payloads []payload.Payload, previous *upload.Result, cfg upload.Config) (*upload.Result, error) {
	if previous == nil {
		return nil, errors.New("no previous result to retry")
	}
	failed := previous.FailedIndices()
	if len(failed) == 0 {
		return previous, nil
	}

	subset := make([]payload.Payload, 0, len(failed))
	for _, index := range failed {
		if index < 0 || index >= len(payloads) {
			return nil, fmt.Errorf("failed index %d is out of range for %d payloads", index, len(payloads))
		}
		subset = append(subset, payloads[index])
	}
	s.logger.Infof("Retrying %d failed uploads", len(subset))

	retried, err := s.run(ctx, subset, cfg)
	if retried == nil {
		s.finish(nil, err)
		return previous, err
	}

	merged, err := merge(previous, retried, failed)
	s.finish(merged, err)
	return merged, err
}

// UploadWithRetries uploads payloads, then resubmits the failed items up to
// retries more times, waiting between attempts. Each resubmission is a new batch.
func (s *Store) UploadWithRetries(ctx context.Context, payloads []payload.Payload, cfg upload.Config, retries uint, wait time.Duration) (*upload.Result, error) {
	result, err := s.UploadPhotos(ctx, payloads, cfg)
	if result == nil || err == nil || retries == 0 {
		return result, err
	}

	_ = retry.Times(retries - 1).Wait(wait).TryWithAbort(func(attempt uint) (error, bool) {
		if ctx.Err() != nil {
			return ctx.Err(), true
		}

		s.logger.Debugf("Retry attempt %d of %d", attempt+1, retries)
		merged, retryErr := s.RetryFailed(ctx, payloads, result, cfg)
		if merged == nil || errors.Is(retryErr, upload.ErrInvalidConfig) {
			return retryErr, true
		}

		result, err = merged, retryErr
		return retryErr, retryErr == nil
	})

	return result, err
}

func (s *Store) run(ctx context.Context, payloads []payload.Payload, cfg upload.Config) (*upload.Result, error) {
	s.mu.Lock()
	s.uploading++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.uploading--
		s.mu.Unlock()
	}()

	return s.runner.Run(ctx, payloads, cfg)
}

func (s *Store) finish(result *upload.Result, err error) {
	if result != nil && len(result.Succeeded) > 0 {
		ids := make([]string, 0, len(result.Succeeded))
		for _, success := range result.Succeeded {
			ids = append(ids, success.Response.ID)
		}

		s.mu.Lock()
		s.lastSuccessfulIDs = ids
		s.mu.Unlock()
	}

	if s.notifier != nil {
		s.notifier.Notify(Summary(result, err))
	}
}

// merge replaces the failed items of previous with the outcome of their resubmission.
// failed maps retried indices to indices of the original batch.
func merge(previous, retried *upload.Result, failed []int) (*upload.Result, error) {
	merged := &upload.Result{
		BatchID:  retried.BatchID,
		Duration: previous.Duration + retried.Duration,
	}

	merged.Succeeded = append(merged.Succeeded, previous.Succeeded...)
	for _, success := range retried.Succeeded {
		success.Index = failed[success.Index]
		merged.Succeeded = append(merged.Succeeded, success)
	}
	for _, failure := range retried.Failed {
		failure.Index = failed[failure.Index]
		merged.Failed = append(merged.Failed, failure)
	}

	sort.Slice(merged.Succeeded, func(i, j int) bool { return merged.Succeeded[i].Index < merged.Succeeded[j].Index })
	sort.Slice(merged.Failed, func(i, j int) bool { return merged.Failed[i].Index < merged.Failed[j].Index })

	switch {
	case len(merged.Failed) == 0:
		merged.Status = upload.StatusAllSucceeded
		return merged, nil
	case len(merged.Succeeded) == 0:
		merged.Status = upload.StatusAllFailed
	default:
		merged.Status = upload.StatusPartial
	}

	return merged, &upload.BatchError{
		Status:   merged.Status,
		Total:    merged.Total(),
		Failures: merged.Failed,
	}
}

// Summary describes a batch outcome for the user.
func Summary(result *upload.Result, err error) Notification {
	var notification Notification
	switch {
	case errors.Is(err, upload.ErrEmptyBatch):
		notification = Notification{Level: LevelInfo, Text: "No photos selected"}
	case result == nil && err != nil:
		notification = Notification{Level: LevelError, Text: fmt.Sprintf("Upload failed: %s", err)}
	case result == nil:
		notification = Notification{Level: LevelInfo, Text: "Nothing uploaded"}
	case result.Status == upload.StatusAllSucceeded:
		notification = Notification{Level: LevelSuccess, Text: fmt.Sprintf("Uploaded %d photos", len(result.Succeeded))}
	case result.Status == upload.StatusPartial:
		notification = Notification{Level: LevelWarning, Text: fmt.Sprintf("%d of %d uploads failed", len(result.Failed), result.Total())}
	default:
		notification = Notification{Level: LevelError, Text: fmt.Sprintf("All %d uploads failed", len(result.Failed))}
	}

	notification.Duration = notification.Level.Duration()
	return notification
}
