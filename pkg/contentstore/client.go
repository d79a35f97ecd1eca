// Package contentstore stores task content on a Pinata-style pinning
// service. Uploaded bytes are opaque; options reference them by CID.
package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/retry"
)

// Client defines the content store operations.
type Client interface {
	// Upload stores data under filename and returns the CID.
	Upload(ctx context.Context, filename string, data []byte) (string, error)

	// Fetch retrieves content by CID through the read gateway.
	Fetch(ctx context.Context, cid string) ([]byte, error)

	// Delete unpins the file holding the CID.
	Delete(ctx context.Context, cid string) error

	// Close releases the underlying HTTP client.
	Close() error
}

// File describes a stored file in list responses.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CID       string    `json:"cid"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

type listResponse struct {
	Data struct {
		Files []File `json:"files"`
	} `json:"data"`
}

type storeClient struct {
	config     *Config
	logger     logging.Logger
	httpClient *retry.HTTPClient
}

// NewClient creates a content store client with the given configuration.
func NewClient(config *Config, logger logging.Logger) (Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient, err := retry.NewHTTPClient(retry.DefaultHTTPRetryConfig(), logger)
	if err != nil {
		return nil, err
	}

	return &storeClient{
		config:     config,
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

func (c *storeClient) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("data cannot be empty")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write data to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.UploadURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.DoWithRetry(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed: status code %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var uploadResp struct {
		Data struct {
			CID string `json:"cid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal upload response: %w", err)
	}

	cid := uploadResp.Data.CID
	if cid == "" {
		return "", fmt.Errorf("received empty CID from content store")
	}

	c.logger.Info("Uploaded content", "filename", filename, "cid", cid)
	return cid, nil
}

func (c *storeClient) Fetch(ctx context.Context, cid string) ([]byte, error) {
	if cid == "" {
		return nil, fmt.Errorf("CID cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.GatewayURL+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.DoWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func (c *storeClient) Delete(ctx context.Context, cid string) error {
	if cid == "" {
		return fmt.Errorf("CID cannot be empty")
	}

	// The management API addresses files by id, so resolve the CID first.
	searchURL := fmt.Sprintf("%s?cid=%s&limit=1", c.config.APIBaseURL, cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.DoWithRetry(req)
	if err != nil {
		return fmt.Errorf("failed to search for CID %s: %w", cid, err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to search for CID %s: status code %d", cid, resp.StatusCode)
	}

	var listResp listResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return fmt.Errorf("failed to decode search response for CID %s: %w", cid, err)
	}
	if len(listResp.Data.Files) == 0 {
		return fmt.Errorf("no file found with CID %s", cid)
	}
	fileID := listResp.Data.Files[0].ID

	deleteReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.APIBaseURL+"/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	deleteReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	deleteResp, err := c.httpClient.DoWithRetry(deleteReq)
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	defer c.closeBody(deleteResp)

	if deleteResp.StatusCode != http.StatusOK && deleteResp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("failed to delete file %s: status code %d", fileID, deleteResp.StatusCode)
	}

	c.logger.Infof("Deleted file %s (cid %s) from content store", fileID, cid)
	return nil
}

func (c *storeClient) Close() error {
	c.httpClient.Close()
	return nil
}

func (c *storeClient) closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		c.logger.Debugf("failed to close response body: %v", err)
	}
}
