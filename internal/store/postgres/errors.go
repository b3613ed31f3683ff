package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/plugbook/internal/store"
)

// mapPostgresError maps PostgreSQL errors onto the store error taxonomy.
// Messages stay generic; the driver error is kept as the cause so table
// names and query text never reach callers.
func mapPostgresError(op string, err error) error {
	if err == nil {
		return nil
	}

	// Cancellation is the caller's decision, not a storage failure
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Network and protocol errors; pgconn knows whether nothing was sent
		return store.Storage("storage unavailable", pgconn.SafeToRetry(err), err)
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return withCause(store.Duplicate("record already exists"), err)

	case pgerrcode.ForeignKeyViolation:
		return withCause(store.Validation("referenced record does not exist"), err)

	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return withCause(store.Validation("value violates a constraint"), err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// Retryable transaction errors
		return store.Storage("transaction aborted by concurrent activity", true, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return store.Storage("database unavailable", true, err)

	case pgerrcode.TooManyConnections,
		pgerrcode.InsufficientResources,
		pgerrcode.OutOfMemory:
		return store.ResourceExhausted("database resource limit reached", err)

	case pgerrcode.QueryCanceled:
		return store.Storage("query canceled", false, err)

	default:
		return store.Storage("storage failure", false, err)
	}
}

func withCause(e *store.Error, cause error) *store.Error {
	e.Cause = cause
	return e
}
