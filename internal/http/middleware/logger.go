package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger emits one structured line per request after the handler chain
// completes. It relies on RequestID running earlier in the chain.
func Logger(log *slog.Logger) fiber.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		requestID, _ := c.Locals(RequestIDLocalKey).(string)
		attrs := []any{
			"request_id", requestID,
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", len(c.Response().Body()),
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}

		if status >= 500 {
			log.Error("http.request", attrs...)
		} else {
			log.Info("http.request", attrs...)
		}
		return err
	}
}
