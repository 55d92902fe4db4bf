package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to AppError with appropriate status codes.
// Anything other than redis.Nil counts as the store being unavailable.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}

	return &AppError{
		Err:     err,
		Kind:    ErrStoreUnavailable,
		Status:  http.StatusBadGateway,
		Message: RedisErrorMessage,
	}
}
