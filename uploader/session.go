package uploader

import (
	"context"
	"sync"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Config holds the host-supplied configuration of a Session.
type Config struct {
	// ChunkSize is the size of each chunk in chunked mode.
	// If not provided (0), DefaultChunkSize is used. Ignored in whole-file mode.
	ChunkSize int64

	// MaxConcurrency caps the number of in-flight requests in whole-file mode.
	// 0 means unbounded: every selected file is dispatched at once.
	// Ignored in chunked mode, which is strictly one request at a time.
	MaxConcurrency int

	// OnSuccess is invoked with no arguments on overall success.
	OnSuccess func()

	// OnFail is invoked with the user-facing error message on overall failure.
	OnFail func(message string)

	// OnProgress is invoked with the percent complete (0-100) after each
	// accepted chunk in chunked mode.
	OnProgress func(percent int)

	// Refresh triggers a refresh of the companion listing view. It is invoked
	// after every completed or aborted chunked transfer and after every
	// successful whole-file batch, and is never awaited.
	Refresh func()

	// Logger is used for diagnostic output. Defaults to log.NewLogger().
	Logger log.Logger

	// Tracker receives transfer events for diagnostics. Optional.
	Tracker analytics.Tracker
}

// Session holds the current file selection and drives transfers over exactly
// one transport: either a whole-file transport or a chunk transport, fixed at
// construction. A Session is intended to be driven by a single caller; one
// Submit must finish before the next Select or Submit.
type Session struct {
	chunkTransport ChunkTransport
	fileTransport  FileTransport
	cfg            Config
	logger         log.Logger
	tracker        transferTracker

	mu        sync.Mutex
	selection []FileHandle
	progress  int
	lastError string
	active    bool
}

// NewChunked creates a session that uploads the first selected file as
// sequential, ordered chunks over the given transport.
func NewChunked(transport ChunkTransport, cfg Config) *Session {
	s := newSession(cfg)
	s.chunkTransport = transport
	return s
}

// NewWholeFile creates a session that uploads every selected file as a single
// request over the given transport, all files concurrently.
func NewWholeFile(transport FileTransport, cfg Config) *Session {
	s := newSession(cfg)
	s.fileTransport = transport
	return s
}

func newSession(cfg Config) *Session {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.OnSuccess == nil {
		cfg.OnSuccess = func() {}
	}
	if cfg.OnFail == nil {
		cfg.OnFail = func(string) {}
	}
	if cfg.OnProgress == nil {
		cfg.OnProgress = func(int) {}
	}
	if cfg.Refresh == nil {
		cfg.Refresh = func() {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Session{
		cfg:     cfg,
		logger:  logger,
		tracker: newTransferTracker(cfg.Tracker, logger),
	}
}

// Select replaces the current selection wholesale. The previous selection is
// discarded even if files is empty.
func (s *Session) Select(files []FileHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrTransferInProgress
	}

	s.selection = make([]FileHandle, len(files))
	copy(s.selection, files)
	return nil
}

// Submit starts a transfer of the current selection and blocks until it
// reaches a terminal state. With an empty selection it returns
// ErrEmptySelection without touching the transport or firing any callback.
// Otherwise exactly one of OnSuccess and OnFail fires before Submit returns.
//
// In chunked mode only the FIRST selected file is transferred, even when the
// selection holds more than one file.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrTransferInProgress
	}
	if len(s.selection) == 0 {
		s.mu.Unlock()
		return ErrEmptySelection
	}
	s.active = true
	s.lastError = ""
	s.progress = 0
	files := make([]FileHandle, len(s.selection))
	copy(files, s.selection)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	if s.chunkTransport != nil {
		return s.runChunked(ctx, files[0])
	}
	return s.runBatch(ctx, files)
}

// Progress returns the percent complete (0-100) of the current or most recent
// chunked transfer attempt.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// TransferError returns the user-facing message of the most recent failure,
// or an empty string. It is cleared when a new transfer attempt begins.
func (s *Session) TransferError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Flush blocks until all pending diagnostic events reached the tracker.
// Hosts should call it before shutting down.
func (s *Session) Flush() {
	s.tracker.wait()
}

// Selected returns a copy of the current selection.
func (s *Session) Selected() []FileHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]FileHandle, len(s.selection))
	copy(files, s.selection)
	return files
}

func (s *Session) setProgress(percent int) {
	s.mu.Lock()
	s.progress = percent
	s.mu.Unlock()

	s.cfg.OnProgress(percent)
}

func (s *Session) finishSuccess() {
	s.mu.Lock()
	s.selection = nil
	s.mu.Unlock()

	s.cfg.OnSuccess()
}

// finishFailure records the user-facing message and notifies the host.
// The selection is deliberately left untouched so a resubmit does not require
// reselecting files.
func (s *Session) finishFailure(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()

	s.cfg.OnFail(message)
}

// dispatchRefresh triggers the companion listing refresh without waiting for
// it to complete.
func (s *Session) dispatchRefresh() {
	go s.cfg.Refresh()
}
