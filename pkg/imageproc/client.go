// Package imageproc is a client for the image processor sidecar the
// Optimization Engine calls to re-encode and resize files into thumbnail
// variants. The sidecar is a separate process so CPU-heavy image codecs
// never run inside the lifecycle engine itself.
//
// Note: the pack's gRPC stack (google.golang.org/grpc,
// go.opentelemetry.io/otel/exporters/otlp/otlptracegrpc) is exercised by
// the OpenTelemetry exporter in internal/telemetry, not here — generating
// a protobuf service for this sidecar would require running protoc, which
// this environment cannot do. A plain HTTP/JSON client is used instead,
// following the same request/response idiom as the teacher's apiclient.
package imageproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the image processor sidecar over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new image processor client.
func New(address string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ProcessRequest asks the sidecar to read sourceKey from the blob store,
// apply the named transform, and write the result to destKey.
type ProcessRequest struct {
	SourceKey string `json:"source_key"`
	DestKey   string `json:"dest_key"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	MimeType  string `json:"mime_type"`
}

// ProcessResponse reports the outcome of a transform.
type ProcessResponse struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

// ExifRequest asks the sidecar to extract EXIF/metadata from a source key.
type ExifRequest struct {
	SourceKey string `json:"source_key"`
}

// ExifResponse is the extracted metadata.
type ExifResponse struct {
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Fields   map[string]any `json:"fields"`
}

// APIError is returned for non-2xx sidecar responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("image processor error (status %d): %s", e.StatusCode, e.Message)
}

// Process runs a resize/re-encode transform on the sidecar.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	var resp ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/v1/process", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Exif extracts metadata from a source key without transforming it.
func (c *Client) Exif(ctx context.Context, req ExifRequest) (*ExifResponse, error) {
	var resp ExifResponse
	if err := c.do(ctx, http.MethodPost, "/v1/exif", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthCheck verifies the sidecar is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			apiErr.StatusCode = resp.StatusCode
			return &apiErr
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
