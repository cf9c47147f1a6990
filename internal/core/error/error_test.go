package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfSurvivesWrapping(t *testing.T) {
	base := MalformedRequest(errors.New("unexpected end of JSON input"))
	wrapped := fmt.Errorf("tool dispatcher: %w", base)

	assert.Equal(t, KindMalformedRequest, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	var appErr *AppError
	require.ErrorAs(t, wrapped, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.False(t, IsRetryable(wrapped))
}

func TestModelAPIRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ModelAPI(errors.New("503"), true)))
	assert.False(t, IsRetryable(ModelAPI(errors.New("401"), false)))
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))
	assert.Equal(t, KindConnectivity, KindOf(WrapRedis(errors.New("dial tcp: refused"))))

	err := WrapRedis(redis.Nil)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestWrapPostgres(t *testing.T) {
	assert.NoError(t, WrapPostgres(nil))
	assert.Equal(t, KindConnectivity, KindOf(WrapPostgres(errors.New("connection refused"))))
	assert.Equal(t, KindInternal, KindOf(WrapPostgres(&pgconn.PgError{Code: "42883"})))
}
