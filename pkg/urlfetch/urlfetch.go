// Package urlfetch implements SSRF-safe URL Download (spec §4.6): fetching
// a remote URL into the Upload Pipeline while refusing to let the server
// be used as a proxy to reach internal network addresses. Every
// redirect hop is re-validated against the same address-resolution and
// denylist checks as the original URL, and both the response size and the
// total wall-clock time are capped.
package urlfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/storeerrors"
)

// Config controls the download ceilings and address policy.
type Config struct {
	MaxBytes       int64
	Timeout        time.Duration
	MaxRedirects   int
	AllowedSchemes []string
	DeniedCIDRs    []string // CIDR ranges a resolved address must not fall within
}

// Fetcher performs SSRF-validated HTTP downloads.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	denied   []*net.IPNet
	allowed  map[string]bool
}

// New constructs a Fetcher, parsing cfg.DeniedCIDRs up front so invalid
// config fails fast at startup rather than on the first download.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}

	denied := make([]*net.IPNet, 0, len(cfg.DeniedCIDRs))
	for _, cidr := range cfg.DeniedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid denied CIDR %q: %w", cidr, err)
		}
		denied = append(denied, network)
	}

	allowed := make(map[string]bool, len(cfg.AllowedSchemes))
	for _, s := range cfg.AllowedSchemes {
		allowed[s] = true
	}
	if len(allowed) == 0 {
		allowed["https"] = true
	}

	f := &Fetcher{cfg: cfg, denied: denied, allowed: allowed}

	f.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return f.validateURL(req.Context(), req.URL)
		},
	}

	return f, nil
}

// Result is a validated, size-bounded download.
type Result struct {
	Body     io.ReadCloser
	MimeType string
	SizeHint int64 // Content-Length if the server reported one, else -1
}

// Fetch downloads rawURL, re-validating every redirect hop, and returns a
// reader capped at cfg.MaxBytes+1 so the Upload Pipeline's own size check
// can detect an over-limit stream without trusting Content-Length.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, storeerrors.NewInvalidArgumentError(fmt.Sprintf("invalid URL: %v", err))
	}
	if err := f.validateURL(ctx, u); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, storeerrors.NewDownloadTimeoutError(rawURL)
	}

	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("remote server returned status %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "url download started", logger.SourceURL(rawURL), logger.Status(fmt.Sprintf("%d", resp.StatusCode)))

	return &Result{
		Body:     &cancelingLimitedReader{r: io.LimitReader(resp.Body, f.cfg.MaxBytes+1), closer: resp.Body, cancel: cancel},
		MimeType: resp.Header.Get("Content-Type"),
		SizeHint: resp.ContentLength,
	}, nil
}

// validateURL enforces the scheme allowlist and resolves the host to
// confirm none of its addresses fall within a denied CIDR range. This
// same check runs on the original URL and every redirect target, closing
// the classic SSRF hole where a validated URL 302s to a private address.
func (f *Fetcher) validateURL(ctx context.Context, u *url.URL) error {
	if !f.allowed[u.Scheme] {
		return storeerrors.NewSSRFBlockedError(fmt.Sprintf("scheme %q not allowed", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return storeerrors.NewSSRFBlockedError("URL has no host")
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return storeerrors.NewSSRFBlockedError(fmt.Sprintf("failed to resolve host %q: %v", host, err))
	}
	if len(addrs) == 0 {
		return storeerrors.NewSSRFBlockedError(fmt.Sprintf("host %q resolved to no addresses", host))
	}

	for _, addr := range addrs {
		if addr.IP.IsLoopback() || addr.IP.IsPrivate() || addr.IP.IsLinkLocalUnicast() || addr.IP.IsLinkLocalMulticast() || addr.IP.IsUnspecified() {
			return storeerrors.NewSSRFBlockedError(fmt.Sprintf("host %q resolves to a reserved address %s", host, addr.IP))
		}
		for _, network := range f.denied {
			if network.Contains(addr.IP) {
				return storeerrors.NewSSRFBlockedError(fmt.Sprintf("host %q resolves to denied range %s", host, network))
			}
		}
	}

	return nil
}

// cancelingLimitedReader releases the HTTP request's context and closes
// the underlying body together, so callers only need to Close() once.
type cancelingLimitedReader struct {
	r      io.Reader
	closer io.Closer
	cancel context.CancelFunc
}

func (c *cancelingLimitedReader) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *cancelingLimitedReader) Close() error {
	defer c.cancel()
	return c.closer.Close()
}
