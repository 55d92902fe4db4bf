package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// StoreErrorMessage describes memory store failures.
	StoreErrorMessage = "memory store unavailable"
	// ModelErrorMessage describes chat model or embedding failures.
	ModelErrorMessage = "model call failed"
)

var (
	// ErrStoreUnavailable is reported when a backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrModelUnavailable is reported when a chat model or embedding call fails.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidToolArgs is reported when a tool call carries unusable arguments.
	ErrInvalidToolArgs = errors.New("invalid tool arguments")
	// ErrUnknownTool is reported when the model requests a tool that does not exist.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrEmptyMessage is reported when a turn is submitted without text.
	ErrEmptyMessage = errors.New("empty message")
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Err     error
	Kind    error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapStore marks err as a StoreUnavailable failure.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     err,
		Kind:    ErrStoreUnavailable,
		Status:  http.StatusBadGateway,
		Message: StoreErrorMessage,
	}
}

// WrapModel marks err as a failed chat model or embedding call.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     err,
		Kind:    ErrModelUnavailable,
		Status:  http.StatusBadGateway,
		Message: ModelErrorMessage,
	}
}

// Is reports whether the target matches the error kind or the underlying error.
func (e *AppError) Is(target error) bool {
	if e.Kind != nil && e.Kind == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
