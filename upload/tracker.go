package upload

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
)

type batchTracker struct {
	tracker analytics.Tracker
	batchID string
}

func newBatchTracker(tracker analytics.Tracker, batchID string) batchTracker {
	return batchTracker{
		tracker: tracker,
		batchID: batchID,
	}
}

func (t batchTracker) logBatchUploaded(result *Result, uploadTime time.Duration, sizeBytes int64) {
	if t.tracker == nil {
		return
	}
	properties := analytics.Properties{
		"batch_id":          t.batchID,
		"item_count":        result.Total(),
		"failed_count":      len(result.Failed),
		"status":            string(result.Status),
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": sizeBytes,
	}
	t.tracker.Enqueue("photo_batch_uploaded", properties)
}

func (t batchTracker) logItemFailed(failure Failure) {
	if t.tracker == nil {
		return
	}
	properties := analytics.Properties{
		"batch_id": t.batchID,
		"index":    failure.Index,
		"reason":   string(failure.Reason),
	}
	t.tracker.Enqueue("photo_upload_item_failed", properties)
}
