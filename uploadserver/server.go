// Package uploadserver implements the reference backend for the uploader:
// a whole-file upload endpoint, a chunk upload endpoint that stitches chunks
// back together, and the companion file listing.
package uploadserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
)

const defaultMaxFormMemory = 32 << 20

var errSizeMismatch = errors.New("file size mismatch")

// Config holds the server's directories and limits.
type Config struct {
	// StoreDir is where completed uploads are stored.
	StoreDir string
	// StagingDir is where chunks wait until their file is complete.
	StagingDir string
	// MaxFormMemory caps the in-memory part of multipart parsing.
	// Default: 32 MiB.
	MaxFormMemory int64
}

// StoredFile describes one completed upload, as served by the listing.
type StoredFile struct {
	Name       string    `json:"name"`
	StoredName string    `json:"storedName"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Server handles the reference upload endpoints.
type Server struct {
	config  Config
	logger  log.Logger
	staging *chunkStaging

	mu    sync.Mutex
	files []StoredFile
}

// New creates a server and its storage directories.
func New(config Config, logger log.Logger) (*Server, error) {
	if config.StoreDir == "" {
		return nil, fmt.Errorf("store dir must not be empty")
	}
	if config.StagingDir == "" {
		config.StagingDir = filepath.Join(config.StoreDir, ".staging")
	}
	if config.MaxFormMemory == 0 {
		config.MaxFormMemory = defaultMaxFormMemory
	}

	for _, dir := range []string{config.StoreDir, config.StagingDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &Server{
		config:  config,
		logger:  logger,
		staging: newChunkStaging(),
	}, nil
}

// Handler returns the HTTP handler serving the upload and listing endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload-single", s.handleUploadSingle)
	mux.HandleFunc("/api/upload-chunk", s.handleUploadChunk)
	mux.HandleFunc("/api/files", s.handleListFiles)
	return mux
}

// Files returns the completed uploads, newest last.
func (s *Server) Files() []StoredFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredFile{}, s.files...)
}

func (s *Server) handleUploadSingle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(s.config.MaxFormMemory); err != nil {
		httpError(w, http.StatusBadRequest, "error parsing form: %s", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "error getting file: %s", err)
		return
	}
	defer file.Close()

	fileName := r.FormValue("fileName")
	if fileName == "" {
		fileName = header.Filename
	}
	if fileName == "" {
		httpError(w, http.StatusBadRequest, "fileName is required")
		return
	}

	stored, err := s.store(fileName, file)
	if err != nil {
		s.logger.Errorf("Failed to store %s: %s", fileName, err)
		httpError(w, http.StatusInternalServerError, "error storing file")
		return
	}

	s.logger.Infof("Stored %s as %s (%d bytes)", stored.Name, stored.StoredName, stored.Size)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "complete",
		"fileName": stored.Name,
		"metadata": stored,
	})
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(s.config.MaxFormMemory); err != nil {
		httpError(w, http.StatusBadRequest, "error parsing form: %s", err)
		return
	}

	fileName := r.FormValue("fileName")
	if fileName == "" {
		httpError(w, http.StatusBadRequest, "fileName is required")
		return
	}
	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		httpError(w, http.StatusBadRequest, "invalid chunkIndex")
		return
	}
	totalChunks, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil || totalChunks < 1 || chunkIndex >= totalChunks {
		httpError(w, http.StatusBadRequest, "invalid totalChunks")
		return
	}
	fileSize, err := strconv.ParseInt(r.FormValue("fileSize"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid fileSize")
		return
	}

	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		httpError(w, http.StatusBadRequest, "error getting chunk: %s", err)
		return
	}
	defer chunk.Close()

	chunkPath := filepath.Join(s.config.StagingDir, fmt.Sprintf("%s_chunk_%d", filepath.Base(fileName), chunkIndex))
	if err := writeToFile(chunkPath, chunk); err != nil {
		s.logger.Errorf("Failed to stage chunk %d of %s: %s", chunkIndex, fileName, err)
		httpError(w, http.StatusInternalServerError, "error saving chunk")
		return
	}

	s.staging.addChunk(fileName, chunkPath, chunkIndex, totalChunks)
	s.logger.Debugf("Staged chunk %d/%d of %s", chunkIndex+1, totalChunks, fileName)

	if !s.staging.isComplete(fileName) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "chunk_received",
			"fileName":    fileName,
			"chunkIndex":  chunkIndex,
			"totalChunks": totalChunks,
		})
		return
	}

	stored, err := s.stitch(fileName, fileSize)
	s.cleanupChunks(fileName)
	if err != nil {
		s.logger.Errorf("Failed to stitch %s: %s", fileName, err)
		// A size mismatch means the client's metadata was wrong, not that the
		// request transiently failed, so it must not look retryable.
		status := http.StatusInternalServerError
		if errors.Is(err, errSizeMismatch) {
			status = http.StatusUnprocessableEntity
		}
		httpError(w, status, "error stitching file: %s", err)
		return
	}

	s.logger.Infof("Stitched %s from %d chunks as %s (%d bytes)", fileName, totalChunks, stored.StoredName, stored.Size)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "complete",
		"fileName": fileName,
		"metadata": stored,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.Files())
}

// store writes the data to a uuid-named file in the store dir and records it
// in the listing.
func (s *Server) store(fileName string, data io.Reader) (StoredFile, error) {
	ext := filepath.Ext(fileName)
	storedName := uuid.New().String() + ext
	finalPath := filepath.Join(s.config.StoreDir, storedName)

	finalFile, err := os.Create(finalPath)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create file: %w", err)
	}
	defer finalFile.Close()

	written, err := io.Copy(finalFile, data)
	if err != nil {
		return StoredFile{}, fmt.Errorf("write file: %w", err)
	}

	stored := StoredFile{
		Name:       fileName,
		StoredName: storedName,
		Size:       written,
		MimeType:   mimeTypeForExt(ext),
		UploadedAt: time.Now().UTC(),
	}
	s.record(stored)
	return stored, nil
}

// stitch concatenates the staged chunks of the file, in index order, into a
// single stored file and verifies the result against the expected size.
func (s *Server) stitch(fileName string, expectedSize int64) (StoredFile, error) {
	chunkPaths := s.staging.chunkPaths(fileName)

	ext := filepath.Ext(fileName)
	storedName := uuid.New().String() + ext
	finalPath := filepath.Join(s.config.StoreDir, storedName)

	finalFile, err := os.Create(finalPath)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create final file: %w", err)
	}
	defer finalFile.Close()

	var totalWritten int64
	for i, chunkPath := range chunkPaths {
		if chunkPath == "" {
			return StoredFile{}, fmt.Errorf("missing chunk %d for file %s", i, fileName)
		}

		chunkFile, err := os.Open(chunkPath)
		if err != nil {
			return StoredFile{}, fmt.Errorf("open chunk %d: %w", i, err)
		}
		written, err := io.Copy(finalFile, chunkFile)
		chunkFile.Close()
		if err != nil {
			return StoredFile{}, fmt.Errorf("copy chunk %d: %w", i, err)
		}
		totalWritten += written
	}

	if totalWritten != expectedSize {
		if err := os.Remove(finalPath); err != nil {
			s.logger.Warnf("Failed to remove mismatched file %s: %s", finalPath, err)
		}
		return StoredFile{}, fmt.Errorf("%w: expected %d, got %d", errSizeMismatch, expectedSize, totalWritten)
	}

	stored := StoredFile{
		Name:       fileName,
		StoredName: storedName,
		Size:       totalWritten,
		MimeType:   mimeTypeForExt(ext),
		UploadedAt: time.Now().UTC(),
	}
	s.record(stored)
	return stored, nil
}

func (s *Server) cleanupChunks(fileName string) {
	for i, chunkPath := range s.staging.chunkPaths(fileName) {
		if chunkPath == "" {
			continue
		}
		if err := os.Remove(chunkPath); err != nil {
			s.logger.Warnf("Failed to delete chunk %d (%s): %s", i, chunkPath, err)
		}
	}
	s.staging.remove(fileName)
}

func (s *Server) record(stored StoredFile) {
	s.mu.Lock()
	s.files = append(s.files, stored)
	s.mu.Unlock()
}

func writeToFile(path string, data io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func mimeTypeForExt(ext string) string {
	mimeType := mime.TypeByExtension(strings.ToLower(ext))
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

func httpError(w http.ResponseWriter, status int, format string, v ...interface{}) {
	http.Error(w, fmt.Sprintf(format, v...), status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
