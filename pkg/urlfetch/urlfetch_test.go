package urlfetch

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bozonx/mediastore/pkg/storeerrors"
)

func newTestFetcher(t *testing.T, deniedCIDRs []string) *Fetcher {
	t.Helper()
	f, err := New(Config{
		MaxBytes:       1024,
		Timeout:        time.Second,
		MaxRedirects:   3,
		AllowedSchemes: []string{"http", "https"},
		DeniedCIDRs:    deniedCIDRs,
	})
	require.NoError(t, err)
	return f
}

func TestValidateURL_BlocksReservedAddresses(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	cases := []string{
		"http://127.0.0.1/",
		"http://localhost/",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/",
		"http://0.0.0.0/",
	}

	for _, raw := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		err = f.validateURL(context.Background(), u)
		require.Error(t, err, "expected %s to be blocked", raw)
		assert.True(t, storeerrors.IsSSRFBlockedError(err), "expected SSRF error for %s, got %v", raw, err)
	}
}

func TestValidateURL_BlocksDeniedCIDR(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, []string{"203.0.113.0/24"})

	u, err := url.Parse("http://203.0.113.5/")
	require.NoError(t, err)

	err = f.validateURL(context.Background(), u)
	require.Error(t, err)
	assert.True(t, storeerrors.IsSSRFBlockedError(err))
}

func TestValidateURL_RejectsDisallowedScheme(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	u, err := url.Parse("ftp://example.com/file")
	require.NoError(t, err)

	err = f.validateURL(context.Background(), u)
	require.Error(t, err)
	assert.True(t, storeerrors.IsSSRFBlockedError(err))
}

func TestValidateURL_AllowsPublicAddress(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	u, err := url.Parse("http://93.184.216.34/")
	require.NoError(t, err)

	err = f.validateURL(context.Background(), u)
	assert.NoError(t, err)
}

func TestNew_RejectsInvalidCIDR(t *testing.T) {
	t.Parallel()
	_, err := New(Config{DeniedCIDRs: []string{"not-a-cidr"}})
	require.Error(t, err)
}

func TestNew_DefaultsToHTTPSOnly(t *testing.T) {
	t.Parallel()
	f, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, f.allowed["https"])
	assert.False(t, f.allowed["http"])
}

func TestFetch_RejectsInvalidURL(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	_, err := f.Fetch(context.Background(), "://not-a-url")
	require.Error(t, err)
}

func TestFetch_BlocksSSRFBeforeDialing(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	_, err := f.Fetch(context.Background(), "http://127.0.0.1:9/")
	require.Error(t, err)
	assert.True(t, storeerrors.IsSSRFBlockedError(err))
}
