package errx

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// WrapPostgres maps store errors to AppError. Connection level failures become
// connectivity errors; statement errors stay internal.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return New(KindInternal, err, http.StatusInternalServerError, PostgresErrorMessage)
	}
	if errors.Is(err, context.Canceled) {
		return Internal(err)
	}
	return Connectivity(err, PostgresErrorMessage)
}
