package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"collage-devserver/internal/metrics"
)

func newMetricsEcho(m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.Use(MetricsMiddleware(m, metrics.NewRouteLabeler("/proxy/", "/healthz")))
	return e
}

// findRequestCounter returns the labels and value of the first requests_total
// series whose route label equals route.
func findRequestCounter(t *testing.T, m *metrics.Metrics, route string) (map[string]string, float64, bool) {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "collage_devserver_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == route {
				return labels, metric.GetCounter().GetValue(), true
			}
		}
	}
	return nil, 0, false
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()
	e := newMetricsEcho(m)
	e.GET("/proxy/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy/https%3A%2F%2Fexample.com%2Fa.png", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	labels, v, ok := findRequestCounter(t, m, "/proxy")
	if !ok {
		t.Fatal("expected collage_devserver_http_requests_total with route=/proxy")
	}
	if v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
	if labels["status_code"] != "200" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "200")
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()
	e := newMetricsEcho(m)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "collage_devserver_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected collage_devserver_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()
	e := newMetricsEcho(m)
	e.GET("/proxy/*", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy/bad", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	labels, _, ok := findRequestCounter(t, m, "/proxy")
	if !ok {
		t.Fatal("expected collage_devserver_http_requests_total with route=/proxy")
	}
	if labels["status_code"] != "404" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "404")
	}
}

func TestMetricsMiddleware_StaticFallback(t *testing.T) {
	m := metrics.New()
	e := newMetricsEcho(m)
	// No routes registered; request should yield 404 labelled as static.

	req := httptest.NewRequest(http.MethodGet, "/index.html", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	labels, _, ok := findRequestCounter(t, m, "static")
	if !ok {
		t.Fatal("expected collage_devserver_http_requests_total with route=static")
	}
	if labels["method"] != "GET" || labels["status_code"] != "404" {
		t.Errorf("labels = %v, want method=GET status_code=404", labels)
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()
	e := newMetricsEcho(m)
	e.Any("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("XYZZY", "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	labels, _, ok := findRequestCounter(t, m, "/healthz")
	if !ok {
		t.Fatal("expected collage_devserver_http_requests_total with route=/healthz")
	}
	if labels["method"] != "other" {
		t.Errorf("method = %q, want %q", labels["method"], "other")
	}
}
