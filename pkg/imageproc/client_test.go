package imageproc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	address := strings.TrimPrefix(server.URL, "http://")
	return New(address, time.Second)
}

func TestProcess_DecodesSuccessResponse(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/process", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ProcessRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "objects/abc", req.SourceKey)

		_ = json.NewEncoder(w).Encode(ProcessResponse{Width: 100, Height: 100, SizeBytes: 512, MimeType: "image/webp"})
	})

	resp, err := c.Process(context.Background(), ProcessRequest{SourceKey: "objects/abc", DestKey: "thumbnails/t-1", Width: 100, Height: 100, MimeType: "image/webp"})
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Width)
	assert.Equal(t, int64(512), resp.SizeBytes)
}

func TestProcess_ReturnsAPIErrorOnFailureStatus(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(APIError{Message: "unsupported source format"})
	})

	_, err := c.Process(context.Background(), ProcessRequest{SourceKey: "objects/abc"})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "unsupported source format", apiErr.Message)
}

func TestProcess_WrapsNonJSONErrorBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	})

	_, err := c.Process(context.Background(), ProcessRequest{})
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "internal server error", apiErr.Message)
}

func TestExif_DecodesFieldsMap(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/exif", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ExifResponse{Width: 800, Height: 600, Fields: map[string]any{"orientation": float64(1)}})
	})

	resp, err := c.Exif(context.Background(), ExifRequest{SourceKey: "objects/abc"})
	require.NoError(t, err)
	assert.Equal(t, 800, resp.Width)
	assert.Equal(t, float64(1), resp.Fields["orientation"])
}

func TestHealthCheck_SucceedsOn2xx(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.HealthCheck(context.Background()))
}

func TestHealthCheck_FailsOnNon2xx(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.HealthCheck(context.Background())
	require.Error(t, err)
}
