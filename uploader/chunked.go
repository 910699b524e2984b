package uploader

import (
	"context"
	"fmt"
	"math"
	"time"
)

// runChunked drives the sequential chunk pipeline: plan, then send one chunk
// at a time, awaiting each outcome before issuing the next. The server is
// guaranteed to observe chunks in index order and memory is bounded to one
// chunk's bytes at a time.
func (s *Session) runChunked(ctx context.Context, file FileHandle) error {
	plan := Plan(file.Size(), s.cfg.ChunkSize)
	totalChunks := len(plan)

	s.logger.Debugf("Uploading %s (%d bytes) in %d chunks of %d bytes", file.Name(), file.Size(), totalChunks, s.cfg.ChunkSize)
	start := time.Now()

	var cause error
	for _, desc := range plan {
		if err := s.sendChunk(ctx, file, desc); err != nil {
			// Fail fast: no chunk after this one is attempted, and chunks
			// already accepted by the server are not rolled back.
			cause = fmt.Errorf("chunk %d/%d: %w", desc.Index+1, totalChunks, err)
			break
		}
		s.setProgress(percentComplete(desc.Index+1, totalChunks))
	}

	// The refresh fires whether the transfer completed or aborted: chunks
	// accepted before an abort may already be visible in the listing.
	s.dispatchRefresh()

	if cause != nil {
		s.logger.Errorf("Chunked upload of %s aborted: %s", file.Name(), cause)
		s.tracker.chunkedAborted(file, totalChunks, cause)
		s.finishFailure(ChunkedUploadFailedMessage)
		return cause
	}

	if totalChunks == 0 {
		// Zero-byte file: nothing to send, treated as an instant success.
		s.logger.Debugf("File %s is empty, nothing to upload", file.Name())
		s.setProgress(100)
	}
	s.tracker.chunkedUploaded(file, totalChunks, time.Since(start))
	s.logger.Donef("Uploaded %s in %d chunks", file.Name(), totalChunks)
	s.finishSuccess()
	return nil
}

func (s *Session) sendChunk(ctx context.Context, file FileHandle, desc ChunkDescriptor) error {
	data, err := file.ByteRange(desc.Start, desc.End)
	if err != nil {
		return fmt.Errorf("read range [%d, %d): %w", desc.Start, desc.End, err)
	}

	payload := ChunkPayload{
		Data:        data,
		ChunkLen:    desc.End - desc.Start,
		FileName:    file.Name(),
		FileSize:    file.Size(),
		ChunkIndex:  desc.Index,
		TotalChunks: desc.TotalChunks,
	}

	s.logger.Debugf("Uploading chunk %d/%d (%d bytes)", desc.Index+1, desc.TotalChunks, payload.ChunkLen)
	return s.chunkTransport.SendChunk(ctx, payload)
}

func percentComplete(completedChunks, totalChunks int) int {
	return int(math.Round(float64(completedChunks) / float64(totalChunks) * 100))
}
