package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
)

// Tx is a unit of work opened on a Backend. All table operations issued with
// the same Tx see each other and become durable together on Commit.
type Tx interface {
	// ID identifies the transaction in logs.
	ID() uuid.UUID

	// Commit persists every operation issued since Begin. It fails with a
	// ConflictError if an optimistic check failed in scope, and with a
	// StorageError on I/O failure; in both cases nothing is persisted.
	Commit(ctx context.Context) error

	// Rollback discards every operation since Begin. Safe to call after
	// Commit and more than once.
	Rollback(ctx context.Context) error

	// MarkFailed poisons the transaction so a later Commit fails with err.
	MarkFailed(err error)
}

// Backend opens units of work against a storage engine.
type Backend interface {
	// Begin acquires a transaction. It fails with ResourceExhausted if no
	// connection becomes available within the configured wait.
	Begin(ctx context.Context) (Tx, error)

	// Close releases backend resources.
	Close()
}

// Table is the storage strategy for one record type. Implementations are
// backend specific; the tenant and version rules live in the repository.
type Table[T models.Model] interface {
	// Insert adds a new row.
	Insert(ctx context.Context, tx Tx, row T) error

	// Get returns the row with the given id inside the organization,
	// including soft-deleted rows. Returns NotFound otherwise.
	Get(ctx context.Context, tx Tx, orgID, id uuid.UUID) (T, error)

	// CompareAndSwap replaces the stored row iff its version equals
	// expectedVersion. Returns Conflict without writing otherwise.
	CompareAndSwap(ctx context.Context, tx Tx, row T, expectedVersion int64) error

	// Query returns one page of rows matching q and the total match count.
	Query(ctx context.Context, tx Tx, q Query) ([]T, int, error)
}

// AuditLog is the append-only sink for audit records.
type AuditLog interface {
	Append(ctx context.Context, tx Tx, rec *models.AuditRecord) error
	ListForRecord(ctx context.Context, tx Tx, orgID uuid.UUID, table string, recordID uuid.UUID) ([]*models.AuditRecord, error)
}
