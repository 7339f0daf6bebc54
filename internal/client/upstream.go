// Package client provides the HTTP client used to reach upstream targets.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"dispatch-proxy-go/internal/config"
	"dispatch-proxy-go/internal/metrics"
	"dispatch-proxy-go/internal/model"
)

// UpstreamClient sends a single request to an upstream and buffers the reply.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	hc := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
	}
	if !cfg.Upstream.FollowRedirects {
		// Relay 3xx answers to the caller untouched.
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &UpstreamClient{
		httpClient: hc,
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
	}
}

// Do executes one request against url and reads the whole response body,
// decoded to identity encoding when its coding is known. A nil body sends no
// body at all. Any failure up to and including decoding the body is returned
// as an error; the response is never partial.
func (c *UpstreamClient) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*model.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}
	// Advertising codings ourselves turns off the transport's implicit gzip
	// handling; decodeBody covers every coding listed.
	req.Header.Set("Accept-Encoding", acceptEncoding)

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method = metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, start, "")
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	c.observe(method, start, strconv.Itoa(resp.StatusCode))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if data, err = decodeBody(resp.Header, data); err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	return &model.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) observe(method string, start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}
}
