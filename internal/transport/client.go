package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/pkg/events"
)

// Options configures the shared orchestrator client.
type Options struct {
	BaseURL         string
	AuthKey         string
	AuthSecret      string
	HTTP2Enabled    bool
	Timeout         time.Duration
	MaxAuthAttempts int
}

// Client is the HTTP transport shared by all runners in a process. It owns
// the connection pool, attaches authentication, refreshes tokens on 401,
// rebuilds the underlying client on protocol-layer errors, and emits a
// timing event for every request.
type Client struct {
	baseURL string
	opts    Options
	bus     *events.Bus
	auth    *authState

	httpMu sync.Mutex
	http   *http.Client
}

// APIError is a non-2xx orchestrator response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("orchestrator returned %d: %s", e.StatusCode, e.Body)
}

// IsTaskGone reports whether err means the server reassigned or no longer
// knows the task. Such updates are logged and dropped, not retried.
func IsTaskGone(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusConflict
}

// Retryable reports whether err is a transient failure worth retrying at
// the update layer. Client-side errors other than "task gone" are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !IsTaskGone(err)
}

// NewClient creates the shared transport.
func NewClient(opts Options, bus *events.Bus) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAuthAttempts <= 0 {
		opts.MaxAuthAttempts = 4
	}
	c := &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		opts:    opts,
		bus:     bus,
	}
	c.http = c.buildHTTPClient()
	if opts.AuthKey != "" {
		c.auth = newAuthState(opts.AuthKey, opts.AuthSecret)
	}
	return c
}

func (c *Client) buildHTTPClient() *http.Client {
	return &http.Client{
		Timeout: c.opts.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			ForceAttemptHTTP2:   c.opts.HTTP2Enabled,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpMu.Lock()
	defer c.httpMu.Unlock()
	c.http.CloseIdleConnections()
}

// request describes one call for the core execution path.
type request struct {
	method     string
	pattern    string // route pattern, used as the uri metric label
	path       string // concrete path
	query      url.Values
	body       interface{}
	out        interface{}
	idempotent bool
	noAuth     bool
}

// do executes a request with auth, retry, and event emission.
func (c *Client) do(ctx context.Context, req request) (int, error) {
	attempts := 1
	if c.auth != nil && !req.noAuth {
		attempts = c.opts.MaxAuthAttempts
	}

	var status int
	var err error
	var token string
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 1 {
			// The first retry after a refresh is immediate; persistent
			// 401s back off before each further refresh attempt.
			sleepWithJitter(ctx, time.Duration(math.Pow(2, float64(attempt-1)))*time.Second)
		}

		if c.auth != nil && !req.noAuth {
			// The rejected token is passed back so concurrent 401s cause
			// one refresh: whoever refreshed first already replaced it.
			token, err = c.token(ctx, token)
			if err != nil {
				return 0, err
			}
		}

		status, err = c.execute(ctx, req, token)
		if status != http.StatusUnauthorized || c.auth == nil || req.noAuth {
			return status, err
		}
		logger.Warn().
			Str("uri", req.pattern).
			Int("attempt", attempt+1).
			Msg("unauthorized response, refreshing token")
	}
	return status, err
}

// execute performs one HTTP round trip, rebuilding the client and retrying
// once when an idempotent request dies on a protocol-layer error.
func (c *Client) execute(ctx context.Context, req request, token string) (int, error) {
	status, err := c.roundTrip(ctx, req, token)
	if err != nil && status == 0 && req.idempotent && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Str("uri", req.pattern).Msg("transport error, recreating client")
		c.rebuild()
		status, err = c.roundTrip(ctx, req, token)
	}
	return status, err
}

func (c *Client) rebuild() {
	c.httpMu.Lock()
	defer c.httpMu.Unlock()
	c.http.CloseIdleConnections()
	c.http = c.buildHTTPClient()
}

func (c *Client) client() *http.Client {
	c.httpMu.Lock()
	defer c.httpMu.Unlock()
	return c.http
}

func (c *Client) roundTrip(ctx context.Context, req request, token string) (status int, err error) {
	start := time.Now()
	defer func() {
		label := "error"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		c.bus.Publish(events.HTTPRequest{
			Method:   req.method,
			URI:      req.pattern,
			Status:   label,
			Duration: time.Since(start),
		})
	}()

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, merr := json.Marshal(req.body)
		if merr != nil {
			return 0, fmt.Errorf("failed to serialize request body: %w", merr)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	if req.out != nil && len(bytes.TrimSpace(data)) > 0 && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(data, req.out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sleepWithJitter sleeps for d plus or minus 10 percent, or until ctx ends.
func sleepWithJitter(ctx context.Context, d time.Duration) {
	jitter := time.Duration(float64(d) * 0.1 * (rand.Float64()*2 - 1))
	select {
	case <-time.After(d + jitter):
	case <-ctx.Done():
	}
}
