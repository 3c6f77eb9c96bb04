package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// HeaderRequestID carries the client-generated request ID. It is stable across retries.
	HeaderRequestID = "X-Request-ID"

	contentTypeJSON = "application/json"
	maxDebugBody    = 1000
)

// Client sends requests to the platform.
type Client interface {
	// Do sends body as JSON (when non-nil) and decodes a JSON response into out (when non-nil).
	Do(ctx context.Context, method, path string, body, out any) error
	// Send sends a raw payload and returns the raw response body.
	Send(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error)
	// Close releases idle connections.
	Close() error
}

// Option customises a client.
type Option func(*client)

// WithTokenSource authenticates requests with tokens from src instead of the configured token.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(c *client) {
		c.tokenSource = src
	}
}

// WithHTTPClient replaces the underlying HTTP client. Authentication is still layered on top.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.baseHTTP = hc
	}
}

type client struct {
	log         logrus.FieldLogger
	httpClient  *http.Client
	baseHTTP    *http.Client
	tokenSource oauth2.TokenSource
	limiter     *rate.Limiter
	baseURL     string
	userAgent   string
	debug       bool
	timeout     time.Duration
	retry       RetryConfig
}

// NewClient creates a platform client.
func NewClient(log logrus.FieldLogger, cfg *Config, opts ...Option) (Client, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &client{
		log:       log.WithField("component", "transport"),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		debug:     cfg.Debug,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseHTTP == nil {
		c.baseHTTP = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     cfg.KeepAlive,
			},
			// Per-request timeouts are applied through the request context
			Timeout: 0,
		}
	}

	if c.tokenSource == nil {
		if token := cfg.BearerToken(); token != "" {
			c.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		}
	}

	c.httpClient = c.baseHTTP
	if c.tokenSource != nil {
		base := c.baseHTTP.Transport
		if base == nil {
			base = http.DefaultTransport
		}

		c.httpClient = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, c.tokenSource),
				Base:   base,
			},
			Timeout: c.baseHTTP.Timeout,
		}
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return c, nil
}

func (c *client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := c.Send(ctx, method, path, contentTypeJSON, payload)
	if err != nil {
		return err
	}

	if out == nil || len(resp) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}

	return nil
}

func (c *client) Send(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	requestID := uuid.NewString()
	endpoint := EndpointLabel(method, path)

	var resp []byte

	err := Retry(ctx, c.retry, func(attempt int) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		var err error

		resp, err = c.executeHTTPRequest(ctx, method, path, contentType, body, requestID, endpoint)
		if err == nil {
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return Permanent(err)
		}

		return err
	}, func(attempt int, err error) {
		observability.RecordPlatformRetry(endpoint)
		c.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"endpoint":   endpoint,
			"attempt":    attempt,
		}).Debug("Retrying platform request")
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *client) executeHTTPRequest(ctx context.Context, method, path, contentType string, body []byte, requestID, endpoint string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.getTimeout(ctx))
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, requestID)

	if c.debug {
		logBody := string(body)
		if len(logBody) > maxDebugBody || contentType != contentTypeJSON {
			logBody = fmt.Sprintf("(%d bytes)", len(body))
		}

		c.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     method,
			"path":       path,
			"body":       logBody,
		}).Debug("Sending platform request")
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordPlatformRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	observability.RecordPlatformRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, path, requestID, respBody)
	}

	if c.debug && len(respBody) < maxDebugBody {
		c.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"response":   string(respBody),
		}).Debug("Platform response")
	}

	return respBody, nil
}

func (c *client) getTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}

	return c.timeout
}

func (c *client) Close() error {
	c.baseHTTP.CloseIdleConnections()
	c.log.Debug("Closed platform client")

	return nil
}

// EndpointLabel collapses resource identifiers in a path so it is safe to use as a metric label.
func EndpointLabel(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, "ri.") {
			segments[i] = "{rid}"
			continue
		}

		if _, err := uuid.Parse(s); err == nil {
			segments[i] = "{id}"
		}
	}

	return method + " " + strings.Join(segments, "/")
}
