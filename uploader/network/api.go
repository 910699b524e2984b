// Package network provides ready-made transport adapters for the uploader
// engine: multipart HTTP adapters for the reference endpoints, an S3 adapter,
// and a client for the companion file listing.
package network

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Default reference endpoints. The adapters append these to the configured
// base URL.
const (
	singleUploadPath = "/api/upload-single"
	chunkUploadPath  = "/api/upload-chunk"
	listingPath      = "/api/files"
)

func unwrapError(resp *http.Response) error {
	errorResp, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}

func closeBody(body io.ReadCloser, logger log.Logger) {
	if err := body.Close(); err != nil {
		logger.Printf(err.Error())
	}
}

// multipartBody assembles a multipart form with the given string fields and a
// single file part, returning the encoded body and its content type.
func multipartBody(fields map[string]string, filePart, fileName string, data io.Reader) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}

	part, err := writer.CreateFormFile(filePart, fileName)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, "", fmt.Errorf("copy file data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body.Bytes(), writer.FormDataContentType(), nil
}

func newHTTPClient(client *retryablehttp.Client, logger log.Logger) *retryablehttp.Client {
	if client != nil {
		return client
	}
	return retryhttp.NewClient(logger)
}
