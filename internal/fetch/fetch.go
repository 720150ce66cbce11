// Package fetch downloads dataset sources over HTTP(S) or from the local
// filesystem, optionally throttled to a fixed byte rate.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client fetches source URLs.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for http and https URLs.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps the download throughput at bytesPerSec. Zero disables throttling.
func WithRateLimit(bytesPerSec int) Option {
	return func(c *Client) {
		if bytesPerSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
		} else {
			c.limiter = nil
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client.
func New(optFns ...Option) *Client {
	c := &Client{
		http:      http.DefaultClient,
		userAgent: "carml",
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(c)
		}
	}
	return c
}

// Fetch opens the resource at rawURL. Supported schemes are http, https and
// file; a bare path is treated as a local file.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		body = resp.Body
	case "file", "":
		p := u.Path
		if u.Scheme == "" {
			p = rawURL
		}
		f, err := os.Open(filepath.FromSlash(p))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		body = f
	default:
		return nil, fmt.Errorf("fetch %s: unsupported scheme %q", rawURL, u.Scheme)
	}

	if c.limiter == nil {
		return body, nil
	}
	return &throttledReader{ctx: ctx, rc: body, limiter: c.limiter}, nil
}

// BaseName returns the file name component of rawURL.
func BaseName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		if b := path.Base(u.Path); b != "." && b != "/" {
			return b
		}
		return strings.ReplaceAll(u.Host, ":", "_")
	}
	return filepath.Base(rawURL)
}

type throttledReader struct {
	ctx     context.Context
	rc      io.ReadCloser
	limiter *rate.Limiter
}

func (r *throttledReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.rc.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *throttledReader) Close() error {
	return r.rc.Close()
}
