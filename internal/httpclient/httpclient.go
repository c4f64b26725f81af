// Package httpclient provides a rate-limited HTTP session used by the
// directory harvester and the bibliographic client. It follows the
// "failure is a value" convention: transport and status-code failures are
// reported on the returned Response rather than as a Go error, so callers
// can branch on retryability without errors.As boilerplate.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Failure describes an HTTP-level problem: a non-2xx status, a timeout, or
// a transport error. A nil Failure means the request fully succeeded.
type Failure struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("http failure (status %d): %v", f.StatusCode, f.Err)
	}

	return fmt.Sprintf("http failure: status %d", f.StatusCode)
}

// Retryable reports whether the failure looks transient: timeouts, 429s,
// and 5xx responses are retryable; 4xx (other than 429) are not.
func (f *Failure) Retryable() bool {
	if f == nil {
		return false
	}

	if f.StatusCode == 0 {
		return true // transport error / timeout
	}

	if f.StatusCode == http.StatusTooManyRequests {
		return true
	}

	return f.StatusCode >= http.StatusInternalServerError
}

// Response wraps the outcome of a Fetch or PostForm call.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Err        *Failure
}

// OK reports whether the response succeeded with a 2xx status.
func (r *Response) OK() bool {
	return r.Err == nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Client is a shared, rate-limited HTTP session. A single Client is safe
// for concurrent use by multiple harvester goroutines; the rate limiter
// ensures they don't collectively burst a target server.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Config configures a new Client.
type Config struct {
	Timeout         time.Duration
	RequestsPerSec  float64
	UserAgent       string
	MaxRedirects    int
	FollowRedirects bool
}

// New builds a Client with a per-instance cookie jar (the "session") and a
// token-bucket limiter gating every request.
func New(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects > 0 {
		httpClient.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}

			return nil
		}
	}

	limit := rate.Limit(cfg.RequestsPerSec)
	if cfg.RequestsPerSec <= 0 {
		limit = rate.Inf
	}

	return &Client{
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
	}, nil
}

// Fetch issues a GET request at the configured rate.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return c.FetchWithHeaders(ctx, rawURL, nil)
}

// FetchWithHeaders issues a GET request carrying extra headers, used by
// clients that authenticate via a header rather than a query parameter.
func (c *Client) FetchWithHeaders(ctx context.Context, rawURL string, extraHeaders map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	return c.do(ctx, req)
}

// PostForm issues a form-encoded POST, used by the CMS-AJAX pagination
// protocol to submit view filters and page requests.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, extraHeaders map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Response{Err: &Failure{Err: err}}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Response{StatusCode: resp.StatusCode, Err: &Failure{StatusCode: resp.StatusCode, Err: err}}, nil
	}

	out := &Response{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}

	if resp.StatusCode >= http.StatusBadRequest {
		out.Err = &Failure{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return out, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}

	if d, err := time.ParseDuration(v + "s"); err == nil {
		return d
	}

	return 0
}
