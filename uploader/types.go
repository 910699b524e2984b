// Package uploader implements client-side upload orchestration: it takes a
// selection of local files and transfers them to a remote endpoint either as
// one concurrent request per file, or as a single file split into sequential,
// ordered chunks. Transport is injected, so the engine works against any
// backend that can accept a whole file or a chunk.
package uploader

import (
	"context"
	"errors"
	"io"
)

// User-facing failure messages. These are the only strings surfaced to the
// host's failure callback; everything else stays in the diagnostic log.
const (
	// ChunkedUploadFailedMessage is reported when any chunk of a chunked
	// transfer is not accepted.
	ChunkedUploadFailedMessage = "Chunked upload failed"

	// BatchUploadFailedMessage is reported when any file of a whole-file
	// batch is not accepted.
	BatchUploadFailedMessage = "Something went wrong during upload"
)

// DefaultChunkSize is the chunk size used in chunked mode when the host does
// not configure one.
const DefaultChunkSize int64 = 51200

// ErrEmptySelection is returned by Submit when no files are selected.
// No transport call is made and no notification callback fires.
var ErrEmptySelection = errors.New("no files selected")

// ErrTransferInProgress is returned by Submit and Select while a previous
// Submit on the same session has not finished yet.
var ErrTransferInProgress = errors.New("a transfer is already in progress")

// FileHandle is an opaque reference to a locally selected file. Handles are
// treated as immutable for the duration of a transfer attempt.
type FileHandle interface {
	// Name returns the file name sent to the remote endpoint.
	Name() string

	// Size returns the file size in bytes.
	Size() int64

	// ByteRange returns a reader over the bytes in [start, end).
	// It may be called multiple times for the same range.
	ByteRange(start, end int64) (io.Reader, error)
}

// ChunkPayload carries one chunk of a chunked transfer to the transport.
type ChunkPayload struct {
	// Data is the chunk's bytes.
	Data io.Reader
	// ChunkLen is the number of bytes readable from Data.
	ChunkLen int64
	// FileName is the original file name, identical for every chunk of a file.
	FileName string
	// FileSize is the full size of the original file.
	FileSize int64
	// ChunkIndex is the zero-based position of this chunk.
	ChunkIndex int
	// TotalChunks is the number of chunks planned for the file.
	TotalChunks int
}

// FileTransport sends a whole file in a single request.
// A nil return means the transfer was accepted; any error counts as failure,
// whether it came from the network or from a non-ok application response.
type FileTransport interface {
	SendFile(ctx context.Context, file FileHandle) error
}

// ChunkTransport sends a single chunk of a file.
// A nil return means the chunk was accepted; any error counts as failure.
type ChunkTransport interface {
	SendChunk(ctx context.Context, payload ChunkPayload) error
}

// FileTransportFunc adapts a function to the FileTransport interface.
type FileTransportFunc func(ctx context.Context, file FileHandle) error

// SendFile calls f.
func (f FileTransportFunc) SendFile(ctx context.Context, file FileHandle) error {
	return f(ctx, file)
}

// ChunkTransportFunc adapts a function to the ChunkTransport interface.
type ChunkTransportFunc func(ctx context.Context, payload ChunkPayload) error

// SendChunk calls f.
func (f ChunkTransportFunc) SendChunk(ctx context.Context, payload ChunkPayload) error {
	return f(ctx, payload)
}
