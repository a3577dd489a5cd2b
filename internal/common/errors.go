package common

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the pipeline distinguishes.
// Callers match with errors.Is; wrapping preserves the class across layers.
var (
	ErrTransport         = errors.New("transport error")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrInvalidStructure  = errors.New("invalid response structure")
	ErrStorage           = errors.New("storage error")
	ErrRecordNotFound    = errors.New("record not found")
	ErrDeletionFailure   = errors.New("deletion failure")
)

// AppError carries a machine-readable code alongside a wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// WrapError annotates err with message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
