package uploader

// ChunkDescriptor describes one planned chunk of a file. The ranges of a plan
// partition [0, fileSize) contiguously, without overlap or gap.
type ChunkDescriptor struct {
	// Index is the zero-based position of the chunk.
	Index int
	// Start is the first byte of the chunk.
	Start int64
	// End is the byte after the last byte of the chunk, so End-Start is the
	// chunk's length. Only the final chunk may be shorter than the chunk size.
	End int64
	// TotalChunks is the length of the plan this descriptor belongs to.
	TotalChunks int
}

// Plan computes the ordered chunk descriptors for a file of fileSize bytes
// split into chunkSize-byte chunks. The result is deterministic: the same
// inputs always produce the same plan.
//
// A zero fileSize produces an empty plan. A non-positive chunkSize also
// produces an empty plan; Session normalizes the chunk size before planning,
// so this only matters for direct callers.
func Plan(fileSize, chunkSize int64) []ChunkDescriptor {
	if fileSize <= 0 || chunkSize <= 0 {
		return nil
	}

	totalChunks := int((fileSize + chunkSize - 1) / chunkSize)
	descriptors := make([]ChunkDescriptor, totalChunks)
	for i := 0; i < totalChunks; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > fileSize {
			end = fileSize
		}
		descriptors[i] = ChunkDescriptor{
			Index:       i,
			Start:       start,
			End:         end,
			TotalChunks: totalChunks,
		}
	}

	return descriptors
}
