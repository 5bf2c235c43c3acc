package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"githubactivity/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultMaxWait    = 60 * time.Second
	defaultBackoff    = time.Second
	defaultBackoffMax = 30 * time.Second

	apiVersion = "2022-11-28"
	userAgent  = "githubactivity"
)

// Attempt outcomes reported to the Recorder.
const (
	OutcomeOK           = "ok"
	OutcomeRateLimited  = "rate_limited"
	OutcomeServerError  = "server_error"
	OutcomeTransport    = "transport_error"
	OutcomeNotFound     = "not_found"
	OutcomeUnauthorized = "unauthorized"
	OutcomeClientError  = "client_error"
)

var nextLinkRE = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Recorder receives fetch telemetry; metrics.Manager satisfies it.
type Recorder interface {
	FetchAttempt(resource, outcome string)
	FetchRetry(reason string)
	RateLimitWait(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) FetchAttempt(string, string) {}
func (nopRecorder) FetchRetry(string)           {}
func (nopRecorder) RateLimitWait(time.Duration) {}

// Fetcher retrieves one page of an endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) (*RawResponse, error)
}

// RawResponse is one successful response body plus the paging and quota
// metadata read from its headers.
type RawResponse struct {
	StatusCode int
	Body       []byte
	Next       string
	RateLimit  RateLimit
}

// HasNext reports whether the response advertised a next page.
func (r *RawResponse) HasNext() bool {
	return r != nil && r.Next != ""
}

// Client represents a GitHub API client
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    *url.URL

	retries     int
	maxWait     time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration

	tracker  *RateLimitTracker
	recorder Recorder
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise installation or a test server.
func WithBaseURL(u *url.URL) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets how many times a retryable failure is retried.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithBackoff sets the exponential backoff base and cap.
func WithBackoff(base, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffMax = maxInterval
	}
}

// WithMaxRateLimitWait bounds how long the client suspends for a quota
// reset before giving up.
func WithMaxRateLimitWait(d time.Duration) Option {
	return func(c *Client) { c.maxWait = d }
}

// WithTracker shares a rate-limit tracker between clients.
func WithTracker(t *RateLimitTracker) Option {
	return func(c *Client) { c.tracker = t }
}

// WithRecorder reports attempts, retries and waits to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithSleep replaces the context-aware sleep used between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces the clock used to compute waits.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(token string, opts ...Option) *Client {
	baseURL, _ := url.Parse(defaultBaseURL)
	c := &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:     baseURL,
		retries:     defaultRetries,
		maxWait:     defaultMaxWait,
		backoffBase: defaultBackoff,
		backoffMax:  defaultBackoffMax,
		recorder:    nopRecorder{},
		sleep:       sleepContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = NewRateLimitTracker()
		c.tracker.now = c.now
	}

	logger.Info("Initializing GitHub client",
		zap.String("base_url", c.baseURL.String()),
		zap.Int("retries", c.retries),
		zap.Duration("timeout", c.httpClient.Timeout))
	return c
}

// Tracker exposes the client's rate-limit tracker.
func (c *Client) Tracker() *RateLimitTracker { return c.tracker }

// attemptError is a failed attempt that may be retried.
type attemptError struct {
	reason     string
	retryAfter time.Duration
	err        error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// Fetch performs a GET against endpoint with params. Rate-limited and
// transient failures are retried up to the configured bound; everything
// else fails on the first attempt.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) (*RawResponse, error) {
	reqURL := c.resolve(endpoint, params)
	resource := resourceFor(endpoint)
	b := c.newBackOff()

	if err := c.awaitQuota(ctx, resource, c.tracker.Delay(resource)); err != nil {
		return nil, err
	}

	var lastErr *attemptError
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := lastErr.retryAfter
			if lastErr.reason == OutcomeRateLimited {
				if d := c.tracker.Delay(resource); d > delay {
					delay = d
				}
			}
			if delay > 0 {
				if err := c.awaitQuota(ctx, resource, delay); err != nil {
					return nil, err
				}
			} else if err := c.sleep(ctx, b.NextBackOff()); err != nil {
				return nil, err
			}
		}

		logger.Debug("Fetching",
			zap.String("url", reqURL),
			zap.Int("attempt", attempt+1))

		resp, err := c.do(ctx, reqURL, resource)
		if err == nil {
			c.recorder.FetchAttempt(resource, OutcomeOK)
			return resp, nil
		}

		var ae *attemptError
		if !errors.As(err, &ae) {
			return nil, err
		}
		c.recorder.FetchAttempt(resource, ae.reason)
		lastErr = ae
		if attempt < c.retries {
			c.recorder.FetchRetry(ae.reason)
			logger.Warn("Retrying request",
				zap.String("endpoint", endpoint),
				zap.String("reason", ae.reason),
				zap.Int("attempt", attempt+1),
				zap.Error(ae.err))
		}
	}

	logger.Error("Giving up on request",
		zap.String("endpoint", endpoint),
		zap.Int("attempts", c.retries+1),
		zap.Error(lastErr))
	if lastErr.reason == OutcomeRateLimited {
		return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRemoteUnavailable, endpoint, c.retries+1, lastErr.err)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrRemoteUnavailable, endpoint, c.retries+1, lastErr.err)
}

// awaitQuota suspends for d, or fails fast when d exceeds the max wait.
func (c *Client) awaitQuota(ctx context.Context, resource string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d > c.maxWait {
		return fmt.Errorf("%w: %w: %s quota exhausted for %s", ErrRemoteUnavailable, ErrRateLimited,
			resource, d.Round(time.Second))
	}
	logger.Info("Rate limit exceeded, waiting for reset",
		zap.String("resource", resource),
		zap.Duration("wait_time", d))
	c.recorder.RateLimitWait(d)
	return c.sleep(ctx, d)
}

func (c *Client) do(ctx context.Context, reqURL, resource string) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &attemptError{reason: OutcomeTransport, err: err}
	}
	defer resp.Body.Close()

	rl, hasRL := parseRateLimit(resp.Header, resource)
	if hasRL {
		c.tracker.Update(rl)
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &attemptError{reason: OutcomeTransport, err: fmt.Errorf("failed to read response: %w", err)}
		}
		return &RawResponse{
			StatusCode: code,
			Body:       body,
			Next:       nextLink(resp.Header.Get("Link")),
			RateLimit:  rl,
		}, nil

	case code == http.StatusTooManyRequests, code == http.StatusForbidden && isRateLimited(resp.Header):
		return nil, &attemptError{
			reason:     OutcomeRateLimited,
			retryAfter: retryAfter(resp.Header),
			err:        fmt.Errorf("%w: status code %d", ErrRateLimited, code),
		}

	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		c.recorder.FetchAttempt(resource, OutcomeUnauthorized)
		return nil, fmt.Errorf("%w: status code %d: %s", ErrUnauthorized, code, errorMessage(resp.Body))

	case code == http.StatusNotFound, code == http.StatusGone, code == http.StatusUnprocessableEntity:
		c.recorder.FetchAttempt(resource, OutcomeNotFound)
		return nil, fmt.Errorf("%w: status code %d: %s", ErrNotFound, code, errorMessage(resp.Body))

	case code >= 500:
		return nil, &attemptError{
			reason: OutcomeServerError,
			err:    fmt.Errorf("status code %d", code),
		}

	default:
		c.recorder.FetchAttempt(resource, OutcomeClientError)
		return nil, fmt.Errorf("%w: status code %d: %s", ErrRemoteUnavailable, code, errorMessage(resp.Body))
	}
}

func (c *Client) resolve(endpoint string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = params.Encode()
	return u.String()
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.backoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func isRateLimited(h http.Header) bool {
	return h.Get("X-RateLimit-Remaining") == "0" || h.Get("Retry-After") != ""
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// nextLink extracts the rel="next" target of a Link header.
func nextLink(linkHeader string) string {
	m := nextLinkRE.FindStringSubmatch(linkHeader)
	if m == nil {
		return ""
	}
	return m[1]
}

func errorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
