package network

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/filedrop-io/go-uploadutils/uploader"
)

// ChunkUploaderConfig holds the configuration of the HTTP chunk adapter.
type ChunkUploaderConfig struct {
	// BaseURL is the backend base URL, e.g. "http://localhost:8080".
	BaseURL string

	// HTTPClient overrides the retryable HTTP client. If nil, a default
	// client is created.
	HTTPClient *retryablehttp.Client
}

// ChunkUploader sends file chunks to the reference backend as multipart POST
// requests carrying the chunk bytes and their position metadata. It implements
// uploader.ChunkTransport. The backend stitches the chunks back together once
// the last one arrives.
type ChunkUploader struct {
	httpClient *retryablehttp.Client
	baseURL    string
	logger     log.Logger
}

// NewChunkUploader creates a chunk transport for the given backend.
func NewChunkUploader(config ChunkUploaderConfig, logger log.Logger) *ChunkUploader {
	return &ChunkUploader{
		httpClient: newHTTPClient(config.HTTPClient, logger),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		logger:     logger,
	}
}

// SendChunk uploads one chunk. The form fields mirror what the reference
// backend expects: fileName, chunkIndex, totalChunks and fileSize as strings,
// and the chunk bytes as the "chunk" file part.
func (u *ChunkUploader) SendChunk(ctx context.Context, payload uploader.ChunkPayload) error {
	fields := map[string]string{
		"fileName":    payload.FileName,
		"chunkIndex":  strconv.Itoa(payload.ChunkIndex),
		"totalChunks": strconv.Itoa(payload.TotalChunks),
		"fileSize":    strconv.FormatInt(payload.FileSize, 10),
	}
	body, contentType, err := multipartBody(fields, "chunk", payload.FileName, payload.Data)
	if err != nil {
		return fmt.Errorf("build request body: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, u.baseURL+chunkUploadPath, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)

	u.logger.Debugf("Uploading chunk %d/%d of %s (%d bytes)",
		payload.ChunkIndex+1, payload.TotalChunks, payload.FileName, payload.ChunkLen)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer closeBody(resp.Body, u.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(resp)
	}

	return nil
}
