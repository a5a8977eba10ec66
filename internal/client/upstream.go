// Package client provides the shared outbound HTTP client used to reach forward targets.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"cors-wrapper-go/internal/config"
	"cors-wrapper-go/internal/metrics"
)

// Response is a fully read upstream response with its body already decoded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// UpstreamClient sends forward requests to arbitrary targets. It is safe for
// concurrent use and shares one connection pool across calls.
type UpstreamClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxBodySize int64
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and a
// whole-exchange timeout taken from upstream.timeout_seconds.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	maxBody := cfg.Upstream.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultUpstreamMaxBodyBytes
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// Accept-Encoding is set explicitly per request; decoding happens in decodeBody.
		DisableCompression: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Upstream.SkipVerify(), //nolint:gosec // self-signed targets are accepted on purpose
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:      logger.With("component", "upstream_client"),
		metrics:     m,
		maxBodySize: maxBody,
	}
}

// Do executes req and reads the whole response. Any error means no response
// was produced; a non-2xx status is not an error.
func (c *UpstreamClient) Do(req *http.Request) (*Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method := metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, start, "")
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := readLimited(resp.Body, c.maxBodySize)
	if err != nil {
		c.observe(method, start, "")
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	c.observe(method, start, strconv.Itoa(resp.StatusCode))

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw, c.maxBodySize)
	if errors.Is(err, ErrBodyTooLarge) {
		c.logger.Warn("decoded upstream body too large",
			"encoding", resp.Header.Get("Content-Encoding"),
			"limit", c.maxBodySize,
		)
		return nil, fmt.Errorf("decode upstream body: %w", err)
	}
	if err != nil {
		c.logger.Warn("could not decode upstream body; passing raw bytes",
			"encoding", resp.Header.Get("Content-Encoding"),
			"err", err,
		)
		body = raw
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Send builds a request bound to ctx and executes it.
func (c *UpstreamClient) Send(ctx context.Context, method, url string, header http.Header, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	if host := header.Get("Host"); host != "" {
		req.Host = host
	}
	return c.Do(req)
}

// observe records latency always and the status counter only when a status is known.
func (c *UpstreamClient) observe(method string, start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}
}
