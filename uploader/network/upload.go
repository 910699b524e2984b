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

// FileUploaderConfig holds the configuration of the HTTP whole-file adapter.
type FileUploaderConfig struct {
	// BaseURL is the backend base URL, e.g. "http://localhost:8080".
	BaseURL string

	// HTTPClient overrides the retryable HTTP client. If nil, a default
	// client is created; its transport-level retry and timeout policy then
	// applies to every request.
	HTTPClient *retryablehttp.Client
}

// FileUploader sends whole files to the reference backend as a single
// multipart POST per file. It implements uploader.FileTransport.
type FileUploader struct {
	httpClient *retryablehttp.Client
	baseURL    string
	logger     log.Logger
}

// NewFileUploader creates a whole-file transport for the given backend.
func NewFileUploader(config FileUploaderConfig, logger log.Logger) *FileUploader {
	return &FileUploader{
		httpClient: newHTTPClient(config.HTTPClient, logger),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		logger:     logger,
	}
}

// SendFile uploads the file's full byte range as the "file" part of a
// multipart form. Any transport error or non-2xx response is a failure.
func (u *FileUploader) SendFile(ctx context.Context, file uploader.FileHandle) error {
	data, err := file.ByteRange(0, file.Size())
	if err != nil {
		return fmt.Errorf("read file %s: %w", file.Name(), err)
	}

	fields := map[string]string{
		"fileName": file.Name(),
		"fileSize": strconv.FormatInt(file.Size(), 10),
	}
	body, contentType, err := multipartBody(fields, "file", file.Name(), data)
	if err != nil {
		return fmt.Errorf("build request body: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, u.baseURL+singleUploadPath, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)

	u.logger.Debugf("Uploading %s (%d bytes) to %s", file.Name(), file.Size(), u.baseURL+singleUploadPath)

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
