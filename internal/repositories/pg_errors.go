package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// isUniqueViolation checks whether the error is a Postgres unique constraint
// failure. Duplicate-insert races resolve through this check instead of
// application-level locking.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
