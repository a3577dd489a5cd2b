package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"healthdoc/internal/http/middleware"
)

// errorBody is the JSON envelope every error response uses.
type errorBody struct {
	RequestID string      `json:"request_id,omitempty"`
	Error     errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	requestID, _ := c.Locals(middleware.RequestIDLocalKey).(string)
	return c.Status(status).JSON(errorBody{
		RequestID: requestID,
		Error:     errorDetail{Code: code, Message: message},
	})
}

// ErrorHandler is the app-level fallback for errors that escape handlers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		code = "HTTP_ERROR"
		message = fiberErr.Message
	}
	return writeError(c, status, code, message)
}
