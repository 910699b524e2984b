package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

// RemoteFile describes one previously uploaded file in the companion listing.
type RemoteFile struct {
	Name       string    `json:"name"`
	StoredName string    `json:"storedName"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ListingClient fetches the companion file listing from the backend and keeps
// the most recent result for the host to read. Its Refresh method fits the
// uploader's Refresh configuration hook.
type ListingClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	logger     log.Logger

	mu     sync.Mutex
	latest []RemoteFile
}

// NewListingClient creates a listing client for the given backend.
func NewListingClient(baseURL string, client *retryablehttp.Client, logger log.Logger) *ListingClient {
	return &ListingClient{
		httpClient: newHTTPClient(client, logger),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// Files fetches the current listing from the backend.
func (c *ListingClient) Files(ctx context.Context) ([]RemoteFile, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, c.baseURL+listingPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return nil, unwrapError(resp)
	}

	var files []RemoteFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	c.mu.Lock()
	c.latest = files
	c.mu.Unlock()

	return files, nil
}

// Refresh re-fetches the listing and caches the result. Errors are logged and
// otherwise swallowed: the refresh trigger is fire-and-forget.
func (c *ListingClient) Refresh() {
	if _, err := c.Files(context.Background()); err != nil {
		c.logger.Warnf("Failed to refresh file listing: %s", err)
	}
}

// Latest returns the most recently fetched listing.
func (c *ListingClient) Latest() []RemoteFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RemoteFile{}, c.latest...)
}
