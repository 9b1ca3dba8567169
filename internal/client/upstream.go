// Package client provides the outbound HTTP client used by the proxy route.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"devserver/internal/config"
	"devserver/internal/metrics"
	"devserver/internal/model"
)

// Client sends single GET requests to arbitrary remote hosts.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a Client whose per-request timeout comes from
// upstream.timeout_seconds. Connections are never reused.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second

	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		timeout: timeout,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Timeout returns the per-request timeout applied to every call.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do executes an HTTP request against the remote host and returns the raw response.
// The caller is responsible for closing the response body.
func (c *Client) Do(req *http.Request) (*model.UpstreamResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Get issues a GET for rawURL with the given headers. The request is marked
// Close so the connection is torn down after the response.
// The provided context controls the lifetime of the request: when it is
// canceled (e.g. the inbound client disconnects), the outbound request is
// canceled too.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	req.Close = true

	return c.Do(req)
}
