package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBodySize bounds a single batch. A bridge drains its buffer on
// every request, so the cap sits far above any realistic backlog.
const maxResponseBodySize = 64 << 20 // 64MB

// ErrResponseTooLarge reports a body longer than the client accepts.
var ErrResponseTooLarge = errors.New("response body too large")

// connection pooling limits shared by every channel polling through one client
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// StatusError reports a response that arrived with a status other than 200.
type StatusError struct {
	// StatusCode is the HTTP status returned by the bridge.
	StatusCode int

	// Body is the start of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Response holds the result of a request made by [Client].
type Response struct {
	// Body contains the complete response body. Bodies over the client's
	// limit are never truncated; Error carries [ErrResponseTooLarge].
	Body []byte

	// StatusCode is the HTTP status code.
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error is set for transport failures, timeouts and non-200 responses.
	// A non-200 response carries a *StatusError.
	Error error
}

// Client is an HTTP client wrapper for polling bridge endpoints.
//
// Timeouts are applied per request via context rather than on the
// underlying http.Client, so one Client can serve channels with different
// timeouts. A Client is safe for concurrent use by many sources.
type Client struct {
	httpClient *http.Client
	maxBody    int64
}

// NewClient creates a [Client] with a pooled transport.
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		maxBody: maxResponseBodySize,
	}
}

// Get performs a GET request with the given headers and timeout.
//
// Get always returns a Response; failures, including non-200 statuses, are
// reported in the Error field. Cancelling ctx aborts the request without
// waiting for the remote side.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// one byte past the limit tells a full body from a cut one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}
	if int64(len(body)) > c.maxBody {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, c.maxBody),
		}
	}

	result := Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
	if resp.StatusCode != http.StatusOK {
		result.Error = &StatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	return result
}

// Close closes idle connections in the client's pool.
//
// Safe to call multiple times and on a nil receiver. The client remains
// usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// snippet shortens a response body for inclusion in error messages.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
