package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/datafed/internal/metrics"
	"github.com/BaSui01/datafed/internal/tlsutil"
	"github.com/BaSui01/datafed/retry"
	"github.com/BaSui01/datafed/types"
)

const defaultTimeout = 10 * time.Second

// Client talks to one backend instance. It is safe for concurrent use.
type Client struct {
	desc    types.InstanceDescriptor
	client  *http.Client
	retryer retry.Retryer
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.retryer = retry.NewBackoffRetryer(p, c.logger) }
}

// WithRateLimit caps outbound request rate to the instance.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.With(zap.String("instance", c.desc.ID)) }
}

// WithMetrics records every backend call on the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the given instance descriptor.
func NewClient(desc types.InstanceDescriptor, opts ...Option) *Client {
	c := &Client{
		desc:   desc,
		client: tlsutil.SecureHTTPClient(defaultTimeout),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryer == nil {
		c.retryer = retry.NewBackoffRetryer(retry.DefaultPolicy(), c.logger)
	}
	return c
}

// Descriptor returns the immutable instance descriptor.
func (c *Client) Descriptor() types.InstanceDescriptor {
	return c.desc
}

// ID returns the instance id.
func (c *Client) ID() string {
	return c.desc.ID
}

func (c *Client) buildHeaders(req *http.Request) {
	if c.desc.APIKey != "" {
		req.Header.Set("X-API-Key", c.desc.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// postJSON issues a retried POST and decodes the JSON response into a
// fresh T. The error, if any, is already translated into the unified
// taxonomy. A generic function rather than a method so each call site
// gets a typed result without assertions.
func postJSON[T any](c *Client, ctx context.Context, endpoint string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "encode request body").
			WithCause(err).
			WithInstance(c.desc.ID)
	}

	return retry.DoWithResultTyped(c.retryer, ctx, func() (*T, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, types.NewError(types.ErrInternal, "rate limiter interrupted").
					WithCause(err).
					WithInstance(c.desc.ID)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, types.NewError(types.ErrInternal, "build request").
				WithCause(err).
				WithInstance(c.desc.ID)
		}
		c.buildHeaders(req)

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			// Transport failures (refused, reset, deadline) are worth one
			// more attempt unless the caller's context is already done.
			if ctx.Err() != nil {
				return nil, types.NewError(types.ErrBackendTransient, "request canceled").
					WithCause(ctx.Err()).
					WithInstance(c.desc.ID)
			}
			return nil, types.NewError(types.ErrBackendTransient, "request failed").
				WithCause(err).
				WithRetryable(true).
				WithInstance(c.desc.ID)
		}
		defer resp.Body.Close()

		latency := time.Since(start)
		c.logger.Debug("backend call",
			zap.String("endpoint", endpointPath(endpoint)),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", latency),
		)
		if c.metrics != nil {
			c.metrics.RecordBackendCall(c.desc.ID, endpointPath(endpoint), strconv.Itoa(resp.StatusCode), latency)
		}

		if resp.StatusCode >= 400 {
			return nil, mapError(resp.StatusCode, readErrMsg(resp.Body), c.desc.ID)
		}

		out := new(T)
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, types.NewError(types.ErrBackendTransient, "decode response").
				WithCause(err).
				WithRetryable(true).
				WithInstance(c.desc.ID)
		}
		return out, nil
	})
}

// HealthCheck verifies the instance answers the node API at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.NodeNames(ctx, []string{"Count_Person"})
	if err != nil {
		return fmt.Errorf("health check for instance %s: %w", c.desc.ID, err)
	}
	return nil
}

func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.desc.BaseURL, "/") + path
}

func endpointPath(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		return u.Path
	}
	return endpoint
}
