package errx

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	base := errors.New("boom")
	err := New(base, http.StatusInternalServerError, SystemErrorMessage)

	assert.EqualError(t, err, "internal server error: boom")
	assert.ErrorIs(t, err, base)

	var appErr *AppError
	require.ErrorAs(t, error(err), &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	var appErr *AppError
	require.ErrorAs(t, WrapRedis(redis.Nil), &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, RedisNotFoundMessage, appErr.Message)

	require.ErrorAs(t, WrapRedis(errors.New("connection refused")), &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestWrapDB(t *testing.T) {
	assert.NoError(t, WrapDB(nil))

	var appErr *AppError
	require.ErrorAs(t, WrapDB(sql.ErrNoRows), &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)

	require.ErrorAs(t, WrapDB(errors.New("disk full")), &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, DBErrorMessage, appErr.Message)
}
