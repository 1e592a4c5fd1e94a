package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/logger"
)

// DefaultBaseURL is the production Jules endpoint.
const DefaultBaseURL = "https://jules.googleapis.com/v1alpha"

// Defaults for the retry policies. All overridable through Config.
const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRetryBaseDelay  = 1 * time.Second
	DefaultRetryMaxDelay   = 30 * time.Second
	DefaultRetryBudget     = 300 * time.Second
	DefaultNotFoundRetries = 5
	DefaultNotFoundDelay   = 1 * time.Second
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	// APIKey authenticates every request via the X-Goog-Api-Key header.
	// Required; NewClient fails without it.
	APIKey string

	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// RequestTimeout bounds each individual HTTP attempt.
	RequestTimeout time.Duration

	// RetryBaseDelay is the first backoff sleep after a 429.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps a single backoff sleep.
	RetryMaxDelay time.Duration

	// RetryBudget caps the total sleep time spent on 429 retries for
	// one logical request.
	RetryBudget time.Duration

	// NotFoundRetries and NotFoundDelay drive RetryNotFound, the
	// eventual-consistency helper for reads right after a create.
	NotFoundRetries int
	NotFoundDelay   time.Duration

	// HTTPClient is injectable for tests. Defaults to a plain client;
	// per-attempt deadlines come from the request context.
	HTTPClient *http.Client

	// Logger receives transport diagnostics. Defaults to the package logger.
	Logger *slog.Logger
}

// Client speaks the Jules REST protocol.
type Client struct {
	apiKey          string
	baseURL         string
	requestTimeout  time.Duration
	retryBaseDelay  time.Duration
	retryMaxDelay   time.Duration
	retryBudget     time.Duration
	notFoundRetries int
	notFoundDelay   time.Duration
	httpClient      *http.Client
	log             *slog.Logger

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient validates the config and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errs.MissingCredential()
	}
	c := &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		requestTimeout:  cfg.RequestTimeout,
		retryBaseDelay:  cfg.RetryBaseDelay,
		retryMaxDelay:   cfg.RetryMaxDelay,
		retryBudget:     cfg.RetryBudget,
		notFoundRetries: cfg.NotFoundRetries,
		notFoundDelay:   cfg.NotFoundDelay,
		httpClient:      cfg.HTTPClient,
		log:             cfg.Logger,
		sleep:           sleepCtx,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = DefaultRetryBaseDelay
	}
	if c.retryMaxDelay <= 0 {
		c.retryMaxDelay = DefaultRetryMaxDelay
	}
	if c.retryBudget <= 0 {
		c.retryBudget = DefaultRetryBudget
	}
	if c.notFoundRetries <= 0 {
		c.notFoundRetries = DefaultNotFoundRetries
	}
	if c.notFoundDelay <= 0 {
		c.notFoundDelay = DefaultNotFoundDelay
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.log == nil {
		c.log = logger.WithComponent("api")
	}
	return c, nil
}

// Do issues one logical request: marshal body, attach auth, retry 429s
// with exponential backoff, map the status code to an error kind, and
// decode the 2xx response into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	const op = errs.Op("api.Do")

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errs.E(op, errs.KindOther, fmt.Sprintf("marshaling %s %s body", method, path), err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	delay := c.retryBaseDelay
	var slept time.Duration
	for {
		status, data, err := c.attempt(ctx, method, reqURL, payload)
		if err != nil {
			return err
		}

		if status == http.StatusTooManyRequests {
			// Stop once the next sleep would blow the budget.
			if slept+delay > c.retryBudget {
				return errs.RateLimited(op, fmt.Errorf("%s %s: HTTP 429", method, path))
			}
			c.log.Warn("rate limited, backing off", "method", method, "path", path, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return errs.E(op, errs.KindCancelled, fmt.Sprintf("%s %s: cancelled during backoff", method, path), err)
			}
			slept += delay
			delay *= 2
			if delay > c.retryMaxDelay {
				delay = c.retryMaxDelay
			}
			continue
		}

		if status < 200 || status >= 300 {
			return c.statusError(op, method, path, status, data)
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return errs.E(op, errs.KindOther, fmt.Sprintf("decoding %s %s response", method, path), err)
			}
		}
		return nil
	}
}

// attempt runs a single HTTP exchange bounded by the request timeout.
func (c *Client) attempt(ctx context.Context, method, reqURL string, payload []byte) (int, []byte, error) {
	const op = errs.Op("api.Do")

	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, reqURL, bodyReader)
	if err != nil {
		return 0, nil, errs.E(op, errs.KindOther, "building request", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Caller cancellation is not a network failure.
		if ctx.Err() != nil {
			return 0, nil, errs.E(op, errs.KindCancelled, "request cancelled", ctx.Err())
		}
		return 0, nil, errs.E(op, errs.KindNetwork, fmt.Sprintf("%s %s", method, reqURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, errs.E(op, errs.KindCancelled, "request cancelled", ctx.Err())
		}
		return 0, nil, errs.E(op, errs.KindNetwork, "reading response body", err)
	}
	return resp.StatusCode, data, nil
}

// statusError maps a non-2xx status to the error taxonomy.
func (c *Client) statusError(op errs.Op, method, path string, status int, body []byte) error {
	detail := serverMessage(body)
	where := fmt.Sprintf("%s %s", method, path)
	if detail != "" {
		where += ": " + detail
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.E(op, errs.KindAuth, errs.Status(status),
			errs.Hint("check JULES_API_KEY"), where)
	case status == http.StatusNotFound:
		return errs.E(op, errs.KindNotFound, errs.Status(status), where)
	case status == http.StatusBadRequest || status == http.StatusConflict:
		// The server rejects operations that are illegal in the
		// session's current state with a 4xx.
		return errs.E(op, errs.KindInvalidState, errs.Status(status), where)
	default:
		return errs.E(op, errs.KindServer, errs.Status(status),
			fmt.Sprintf("%s: HTTP %d", where, status))
	}
}

// serverMessage pulls the human-readable message out of a Google-style
// error body, if one is present.
func serverMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

// RetryNotFound runs fn, retrying only NotFound failures. Fresh resources
// are not always immediately readable, so reads right after a create go
// through this wrapper. Any other error short-circuits.
func (c *Client) RetryNotFound(ctx context.Context, fn func(context.Context) error) error {
	const op = errs.Op("api.RetryNotFound")

	delay := c.notFoundDelay
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil || !errs.Is(lastErr, errs.KindNotFound) {
			return lastErr
		}
		if attempt >= c.notFoundRetries {
			return lastErr
		}
		if err := c.sleep(ctx, delay); err != nil {
			return errs.E(op, errs.KindCancelled, "cancelled while waiting for resource", err)
		}
		delay *= 2
	}
}

// sleepCtx sleeps for d unless the context fires first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
