// Package client provides the upstream HTTP client for remote image hosts.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"collage-devserver/internal/config"
	"collage-devserver/internal/metrics"
	"collage-devserver/internal/model"
	"collage-devserver/internal/service"
)

// ErrPrivateAddress is returned when proxy.block_private is set and a target
// resolves to a local or private address.
var ErrPrivateAddress = errors.New("refusing to dial private address")

// ImageClient fetches images from arbitrary upstream hosts.
type ImageClient struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewImageClient creates an ImageClient with connection pooling and the
// configured timeout. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewImageClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ImageClient {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.Proxy.BlockPrivate {
		// Host names are checked by the service; this catches names that
		// resolve to private addresses.
		dialer.Control = rejectPrivate
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Proxy.IdleConnections,
		MaxIdleConnsPerHost: cfg.Proxy.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext:         dialer.DialContext,
	}

	return &ImageClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second,
		},
		userAgent: cfg.Proxy.UserAgent,
		logger:    logger.With("component", "image_client"),
		metrics:   m,
	}
}

// Get issues a GET for target with the spoofed user agent and returns the raw
// response. The caller is responsible for closing the response body.
// The context controls the lifetime of the upstream request: when it is
// canceled (e.g. client disconnects), the upstream request is also canceled.
func (c *ImageClient) Get(ctx context.Context, target string) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*,*/*")

	c.logger.Debug("upstream request", "host", req.URL.Host, "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues("error").Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(status).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func rejectPrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if service.IsPrivateAddr(addr) {
		return fmt.Errorf("%w %s", ErrPrivateAddress, addr)
	}
	return nil
}
