package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	t.Run("generates an id when absent", func(t *testing.T) {
		app := fiber.New()
		app.Use(RequestID())
		app.Get("/", func(c *fiber.Ctx) error {
			assert.NotEmpty(t, c.Locals(RequestIDLocalKey))
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		assert.NoError(t, err)
		assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	})

	t.Run("propagates an incoming id", func(t *testing.T) {
		app := fiber.New()
		app.Use(RequestID())
		app.Get("/", func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, "incoming-id")
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, "incoming-id", resp.Header.Get(RequestIDHeader))
	})
}

func TestLogger(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Logger(nil))
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "down")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Errors must pass through the logger untouched.
	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
