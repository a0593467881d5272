package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"collage-devserver/internal/config"
	"collage-devserver/internal/metrics"
	"collage-devserver/internal/model"
	"collage-devserver/internal/service"
)

// ProxyHandler relays remote images to the browser with CORS headers.
type ProxyHandler struct {
	service      *service.ImageProxyService
	prefix       string
	cacheControl string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ImageProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service:      svc,
		prefix:       cfg.Proxy.Prefix,
		cacheControl: fmt.Sprintf("public, max-age=%d", cfg.Proxy.CacheMaxAgeSeconds),
		logger:       logger.With("component", "proxy_handler"),
		metrics:      m,
	}
}

// Handle fetches the image named by the path suffix and writes it back whole.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	ir := &model.ImageRequest{
		Ctx:     req.Context(),
		Encoded: h.encodedTarget(req),
	}

	img, err := h.service.Fetch(ir)
	if err != nil {
		return h.mapError(c, err)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderCacheControl, h.cacheControl)

	if h.metrics != nil {
		h.metrics.ProxyBytesSent.Add(float64(len(img.Body)))
	}
	return c.Blob(http.StatusOK, img.ContentType, img.Body)
}

// encodedTarget returns everything after the proxy prefix, still escaped.
// An unescaped '?' in the embedded URL ends up in the query string, so the
// raw query is glued back on.
func (h *ProxyHandler) encodedTarget(req *http.Request) string {
	encoded, _ := strings.CutPrefix(req.URL.EscapedPath(), h.prefix)
	if req.URL.RawQuery != "" {
		encoded += "?" + req.URL.RawQuery
	}
	return encoded
}

// mapError answers every proxy failure with 404 and the failure text.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	kind := service.KindNetwork
	target := ""
	var fe *service.FetchError
	if errors.As(err, &fe) {
		kind = fe.Kind
		target = fe.URL
	}

	attrs := []any{"err", err, "kind", string(kind)}
	if target != "" {
		attrs = append(attrs, "url", target)
	}
	h.logger.Error("proxying image failed", attrs...)

	if h.metrics != nil {
		h.metrics.ProxyFailures.WithLabelValues(string(kind)).Inc()
	}

	return c.String(http.StatusNotFound, "Could not fetch image: "+err.Error())
}
