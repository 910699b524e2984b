package uploader

import (
	"context"
	"fmt"
	"time"
)

type fileResult struct {
	index int
	name  string
	err   error
}

// runBatch dispatches one whole-file request per selected file and waits for
// all of them to settle. The join is all-or-nothing: a single failure fails
// the batch, but does not cancel sibling requests already in flight.
func (s *Session) runBatch(ctx context.Context, files []FileHandle) error {
	s.logger.Debugf("Uploading %d files", len(files))
	start := time.Now()

	resultChan := make(chan fileResult, len(files))

	var semaphore chan struct{}
	if s.cfg.MaxConcurrency > 0 {
		semaphore = make(chan struct{}, s.cfg.MaxConcurrency)
	}

	for i, file := range files {
		go func(index int, file FileHandle) {
			if semaphore != nil {
				semaphore <- struct{}{}
				defer func() { <-semaphore }()
			}

			resultChan <- fileResult{
				index: index,
				name:  file.Name(),
				err:   s.fileTransport.SendFile(ctx, file),
			}
		}(i, file)
	}

	var firstFailure error
	failedCount := 0
	for settled := 0; settled < len(files); settled++ {
		result := <-resultChan
		if result.err != nil {
			failedCount++
			if firstFailure == nil {
				firstFailure = fmt.Errorf("upload %s: %w", result.name, result.err)
			}
			s.logger.Warnf("Upload of %s failed: %s", result.name, result.err)
		}
	}

	if firstFailure != nil {
		s.logger.Errorf("Batch upload failed: %d of %d files not accepted", failedCount, len(files))
		s.tracker.batchFailed(len(files), failedCount, firstFailure)
		s.finishFailure(BatchUploadFailedMessage)
		return firstFailure
	}

	s.tracker.batchUploaded(files, time.Since(start))
	s.logger.Donef("Uploaded %d files", len(files))
	s.dispatchRefresh()
	s.finishSuccess()
	return nil
}
