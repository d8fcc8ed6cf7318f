package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/parkwatch"
)

const maxResponseBodySize = 4 << 20 // 4MB

// connection pooling limits; a session talks to a single host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the result of an HTTP request made by [Client].
//
// Response captures the body (limited to 4MB), status code, final URL after
// redirects, latency and any error that occurred.
type Response struct {
	// Body contains the HTTP response body, limited to 4MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// URL is the final request URL after redirects.
	URL string

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request, wrapped
	// with [parkwatch.ErrTimeout] when the request ran out of time.
	Error error
}

// Client is an HTTP client with a cookie jar and request pacing.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Every request waits on the rate limiter first, so a tight retry loop never
// hammers the portal.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient creates a new [Client] with its own cookie jar.
//
// rps and burst configure the limiter; rps <= 0 disables pacing.
func NewClient(rps float64, burst int, userAgent string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Jar: jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: userAgent,
	}, nil
}

// Get fetches rawURL.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) Response {
	return c.do(ctx, http.MethodGet, rawURL, nil, timeout)
}

// PostForm submits form to rawURL as application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, timeout time.Duration) Response {
	return c.do(ctx, http.MethodPost, rawURL, form, timeout)
}

// do performs a request and returns a structured [Response].
//
// do always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values, timeout time.Duration) Response {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("rate limiter: %w", err),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   markTimeout(fmt.Errorf("request failed: %w", err)),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      markTimeout(fmt.Errorf("failed to read response body: %w", err)),
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Latency:    time.Since(start),
	}
}

// markTimeout wraps err with [parkwatch.ErrTimeout] when it was caused by a
// deadline or a network timeout.
func markTimeout(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", parkwatch.ErrTimeout, err)
	}
	return err
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
