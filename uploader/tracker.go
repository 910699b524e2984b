package uploader

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
)

// transferTracker forwards terminal transfer events to the host's diagnostic
// sink. Failures surfaced to the user carry only the fixed message strings;
// the tracker is where the underlying reasons end up.
type transferTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newTransferTracker(tracker analytics.Tracker, logger log.Logger) transferTracker {
	return transferTracker{
		tracker: tracker,
		logger:  logger,
	}
}

func (t transferTracker) chunkedUploaded(file FileHandle, chunkCount int, uploadTime time.Duration) {
	t.enqueue("chunked_upload_finished", analytics.Properties{
		"file_size_bytes": file.Size(),
		"chunk_count":     chunkCount,
		"upload_time_s":   uploadTime.Truncate(time.Second).Seconds(),
	})
}

func (t transferTracker) chunkedAborted(file FileHandle, chunkCount int, cause error) {
	t.enqueue("chunked_upload_aborted", analytics.Properties{
		"file_size_bytes": file.Size(),
		"chunk_count":     chunkCount,
		"error":           cause.Error(),
	})
}

func (t transferTracker) batchUploaded(files []FileHandle, uploadTime time.Duration) {
	var totalBytes int64
	for _, file := range files {
		totalBytes += file.Size()
	}
	t.enqueue("batch_upload_finished", analytics.Properties{
		"file_count":       len(files),
		"total_size_bytes": totalBytes,
		"upload_time_s":    uploadTime.Truncate(time.Second).Seconds(),
	})
}

func (t transferTracker) batchFailed(fileCount, failedCount int, cause error) {
	t.enqueue("batch_upload_failed", analytics.Properties{
		"file_count":   fileCount,
		"failed_count": failedCount,
		"error":        cause.Error(),
	})
}

func (t transferTracker) enqueue(event string, properties analytics.Properties) {
	t.logger.Debugf("Transfer event: %s %v", event, properties)
	if t.tracker == nil {
		return
	}
	t.tracker.Enqueue(event, properties)
}

// wait flushes pending events. Called by hosts that enqueue through a
// buffered tracker before shutting down.
func (t transferTracker) wait() {
	if t.tracker == nil {
		return
	}
	t.tracker.Wait()
}
