package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

type fakeFileHandle struct {
	name string
	data []byte
}

func (f fakeFileHandle) Name() string { return f.name }

func (f fakeFileHandle) Size() int64 { return int64(len(f.data)) }

func (f fakeFileHandle) ByteRange(start, end int64) (io.Reader, error) {
	if start < 0 || end > int64(len(f.data)) || start > end {
		return nil, fmt.Errorf("range [%d, %d) out of bounds", start, end)
	}
	return bytes.NewReader(f.data[start:end]), nil
}

type sentChunk struct {
	fileName    string
	chunkIndex  int
	totalChunks int
	data        []byte
}

// fakeChunkTransport records every payload it receives and fails the chunk at
// failAtIndex (if non-negative).
type fakeChunkTransport struct {
	mu          sync.Mutex
	sent        []sentChunk
	failAtIndex int
}

func newFakeChunkTransport() *fakeChunkTransport {
	return &fakeChunkTransport{failAtIndex: -1}
}

func (t *fakeChunkTransport) SendChunk(_ context.Context, payload ChunkPayload) error {
	data, err := io.ReadAll(payload.Data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.sent = append(t.sent, sentChunk{
		fileName:    payload.FileName,
		chunkIndex:  payload.ChunkIndex,
		totalChunks: payload.TotalChunks,
		data:        data,
	})
	t.mu.Unlock()

	if payload.ChunkIndex == t.failAtIndex {
		return fmt.Errorf("chunk %d rejected", payload.ChunkIndex)
	}
	return nil
}

func (t *fakeChunkTransport) sentChunks() []sentChunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentChunk{}, t.sent...)
}

// fakeFileTransport counts calls and fails the files listed in failNames.
// The gate channel, when set, blocks every send until the channel is closed.
type fakeFileTransport struct {
	mu        sync.Mutex
	calls     []string
	failNames map[string]bool
	gate      chan struct{}

	inFlight    int32
	maxInFlight int32
}

func newFakeFileTransport() *fakeFileTransport {
	return &fakeFileTransport{failNames: map[string]bool{}}
}

func (t *fakeFileTransport) SendFile(_ context.Context, file FileHandle) error {
	current := atomic.AddInt32(&t.inFlight, 1)
	for {
		max := atomic.LoadInt32(&t.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&t.maxInFlight, max, current) {
			break
		}
	}
	defer atomic.AddInt32(&t.inFlight, -1)

	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	t.calls = append(t.calls, file.Name())
	fail := t.failNames[file.Name()]
	t.mu.Unlock()

	if fail {
		return fmt.Errorf("%s rejected", file.Name())
	}
	return nil
}

func (t *fakeFileTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// callbackRecorder captures notification and refresh invocations.
type callbackRecorder struct {
	successCount int32
	refreshCount int32

	mu           sync.Mutex
	failMessages []string
	progress     []int
}

func (r *callbackRecorder) config() Config {
	return Config{
		OnSuccess: func() { atomic.AddInt32(&r.successCount, 1) },
		OnFail: func(message string) {
			r.mu.Lock()
			r.failMessages = append(r.failMessages, message)
			r.mu.Unlock()
		},
		OnProgress: func(percent int) {
			r.mu.Lock()
			r.progress = append(r.progress, percent)
			r.mu.Unlock()
		},
		Refresh: func() { atomic.AddInt32(&r.refreshCount, 1) },
	}
}

func (r *callbackRecorder) successes() int {
	return int(atomic.LoadInt32(&r.successCount))
}

func (r *callbackRecorder) refreshes() int {
	return int(atomic.LoadInt32(&r.refreshCount))
}

func (r *callbackRecorder) failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.failMessages...)
}

func (r *callbackRecorder) progressValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int{}, r.progress...)
}
