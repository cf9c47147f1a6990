package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// RedisNotFoundMessage is used when a key is missing.
const RedisNotFoundMessage = "redis key not found"

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(KindInternal, err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return Connectivity(err, RedisErrorMessage)
}
