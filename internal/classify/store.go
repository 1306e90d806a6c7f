package classify

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	redis "github.com/redis/go-redis/v9"

	"github.com/splax/terror/internal/repository"
)

// IsStoreError reports whether err originated in a storage driver or repository.
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return true
	}
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, repository.ErrStore)
}
