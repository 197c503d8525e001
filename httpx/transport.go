// Package httpx provides the HTTP transport used by the wiki client:
// GET/POST helpers returning response bodies, a cookie jar that keeps
// client-set and server-set cookies apart so sessions can be persisted,
// and an optional on-disk response cache for offline runs.
package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a whole request including body download.
const DefaultTimeout = 300 * time.Second

// NetworkError wraps a failure to reach the server at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// IsServerError reports whether the status is in the 5xx range.
func (e *HTTPError) IsServerError() bool { return e.StatusCode >= 500 }

// IsForbidden reports a 403 response.
func (e *HTTPError) IsForbidden() bool { return e.StatusCode == http.StatusForbidden }

// IsNotFound reports a 404 response.
func (e *HTTPError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// Transport abstracts the HTTP layer so the wire layer can be tested
// against fakes and wrapped with a disk cache.
type Transport interface {
	// Get performs a GET request and returns the response body.
	Get(ctx context.Context, url string) ([]byte, error)
	// Post performs a form-encoded POST request and returns the
	// response body.
	Post(ctx context.Context, url, body string) ([]byte, error)
}

// Client is the real HTTP transport.
type Client struct {
	httpClient *http.Client
	jar        *Jar
	userAgent  string
	logger     *slog.Logger
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewClient builds a transport with a fresh cookie jar.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wikibot/1.0"
	}
	jar := NewJar()
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		jar:       jar,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
}

// Jar returns the cookie jar, for session persistence.
func (c *Client) Jar() *Jar { return c.jar }

// Get implements Transport.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, "")
}

// Post implements Transport.
func (c *Client) Post(ctx context.Context, url, body string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

func (c *Client) do(ctx context.Context, method, url, body string) ([]byte, error) {
	var reader io.Reader
	if method == http.MethodPost {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	c.logger.Debug("http request",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return data, nil
}
