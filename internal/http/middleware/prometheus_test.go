package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestApp(t *testing.T) (*fiber.App, *PrometheusMiddleware) {
	t.Helper()
	// Fresh registry per test to avoid duplicate registration panics.
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg)
	if err != nil {
		t.Fatalf("failed to create middleware: %v", err)
	}
	app := fiber.New()
	app.Use(m.Handler())
	return app, m
}

func TestPrometheusMiddleware(t *testing.T) {
	app, m := newTestApp(t)

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "bad request")
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/test", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if count := testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/test", "200")); count != 1 {
		t.Errorf("expected count 1, got %f", count)
	}

	app.Test(httptest.NewRequest("GET", "/error", nil))
	if count := testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/error", "400")); count != 1 {
		t.Errorf("expected count 1 for error, got %f", count)
	}
}

func TestPrometheusMiddleware_ExcludeMetrics(t *testing.T) {
	app, m := newTestApp(t)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Test(httptest.NewRequest("GET", "/metrics", nil))

	if count := testutil.CollectAndCount(m.requestCount); count != 0 {
		t.Errorf("expected /metrics to be excluded, got %d series", count)
	}
}

func TestPrometheusMiddleware_PathPattern(t *testing.T) {
	app, m := newTestApp(t)
	app.Get("/documents/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Test(httptest.NewRequest("GET", "/documents/123", nil))

	// The route pattern is the label, not the concrete path.
	if count := testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/documents/:id", "200")); count != 1 {
		t.Errorf("expected count 1 for pattern /documents/:id, got %f", count)
	}
	if count := testutil.CollectAndCount(m.requestDuration); count == 0 {
		t.Error("expected histogram metrics to be collected, got 0")
	}
}
