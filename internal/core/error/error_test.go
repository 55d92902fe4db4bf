package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapStore_KindAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("upsert: %w", WrapStore(cause))

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrModelUnavailable))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Contains(t, err.Error(), StoreErrorMessage)
}

func TestWrapModel(t *testing.T) {
	err := WrapModel(errors.New("quota exceeded"))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.Equal(t, "model call failed: quota exceeded", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, WrapStore(nil))
	assert.NoError(t, WrapModel(nil))
	assert.NoError(t, WrapRedis(nil))
}

func TestWrapRedis(t *testing.T) {
	notFound := WrapRedis(redis.Nil)
	var appErr *AppError
	require.True(t, errors.As(notFound, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.False(t, errors.Is(notFound, ErrStoreUnavailable))

	down := WrapRedis(errors.New("i/o timeout"))
	assert.True(t, errors.Is(down, ErrStoreUnavailable))
}
