// Package repository implements tenant-scoped CRUD once, generically, for
// every record type. Storage is delegated to a store.Table; the rules for
// identity, tenancy, versioning and soft delete live here.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// SystemClock returns the current time in UTC at the microsecond precision
// the storage backends keep.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// WithClock overrides the clock used for timestamps. Readings are stored in
// UTC truncated to the microsecond, like SystemClock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides the id generator (UUIDv7 by default).
func WithIDGenerator(newID func() (uuid.UUID, error)) Option {
	return func(o *options) { o.newID = newID }
}

// Repository provides CRUD for one record type, always scoped to the
// organization of the caller's store.Scope.
type Repository[T models.Model] struct {
	table  store.Table[T]
	schema *store.Schema[T]
	now    func() time.Time
	newID  func() (uuid.UUID, error)
}

// New creates a repository over table.
func New[T models.Model](table store.Table[T], schema *store.Schema[T], opts ...Option) *Repository[T] {
	o := options{now: SystemClock, newID: uuid.NewV7}
	for _, opt := range opts {
		opt(&o)
	}
	clock := o.now
	now := func() time.Time { return clock().UTC().Truncate(time.Microsecond) }
	return &Repository[T]{table: table, schema: schema, now: now, newID: o.newID}
}

// Schema returns the record schema.
func (r *Repository[T]) Schema() *store.Schema[T] {
	return r.schema
}

// Change pairs the state of a record before and after a mutation. Before is
// the zero value for creates.
type Change[T models.Model] struct {
	Before T
	After  T
}

// BatchError reports the first failing item of a bulk operation.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

// Unwrap exposes the item error so its kind is preserved.
func (e *BatchError) Unwrap() error {
	return e.Err
}

type getOptions struct {
	includeDeleted bool
}

// GetOption configures a read.
type GetOption func(*getOptions)

// IncludeDeleted makes reads return soft-deleted rows.
func IncludeDeleted() GetOption {
	return func(o *getOptions) { o.includeDeleted = true }
}

// GetByID returns the record with the given id. Soft-deleted records and
// records of other organizations are reported as NotFound.
func (r *Repository[T]) GetByID(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, opts ...GetOption) (T, error) {
	var zero T
	if err := scope.Validate(); err != nil {
		return zero, err
	}

	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	row, err := r.table.Get(ctx, tx, scope.OrgID, id)
	if err != nil {
		return zero, err
	}
	if row.Base().IsDeleted && !o.includeDeleted {
		return zero, store.NotFound(r.schema.Entity)
	}
	return row, nil
}

// Create assigns identity, tenancy, timestamps and version 1 to a copy of
// payload and inserts it. A payload carrying an id, or an organization other
// than the scope's, is rejected.
func (r *Repository[T]) Create(ctx context.Context, tx store.Tx, scope store.Scope, payload T) (T, error) {
	var zero T
	if err := scope.Validate(); err != nil {
		return zero, err
	}

	row := r.schema.Clone(payload)
	b := row.Base()

	if b.ID != uuid.Nil {
		return zero, store.FieldInvalid("id", "is assigned by the system")
	}
	if b.OrganizationID != uuid.Nil && b.OrganizationID != scope.OrgID {
		return zero, store.FieldInvalid("organization_id", "does not match the caller's organization")
	}

	id, err := r.newID()
	if err != nil {
		return zero, store.Storage("failed to allocate id", false, err)
	}
	now := r.now()

	b.ID = id
	b.OrganizationID = scope.OrgID
	b.CreatedAt = now
	b.UpdatedAt = now
	b.IsDeleted = false
	b.DeletedAt = nil
	b.Version = 1
	b.CreatedBy = scope.Actor()
	b.UpdatedBy = scope.Actor()

	if r.schema.Validate != nil {
		if err := r.schema.Validate(row); err != nil {
			return zero, err
		}
	}

	if err := r.table.Insert(ctx, tx, row); err != nil {
		return zero, err
	}
	return r.schema.Clone(row), nil
}

// Update applies patch under the optimistic check and returns the new state.
func (r *Repository[T]) Update(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64, patch store.Patch) (T, error) {
	ch, err := r.UpdateTracked(ctx, tx, scope, id, expectedVersion, patch)
	return ch.After, err
}

// UpdateTracked is Update returning the before and after states.
func (r *Repository[T]) UpdateTracked(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64, patch store.Patch) (Change[T], error) {
	if len(patch) == 0 {
		return Change[T]{}, store.Validation("empty patch")
	}
	return r.mutate(ctx, tx, scope, id, expectedVersion, false, func(row T, _ time.Time) error {
		return r.schema.ApplyPatch(row, patch)
	})
}

// Modify applies a typed mutation under the optimistic check. It is meant
// for services that own derived columns; fn must not touch base fields.
func (r *Repository[T]) Modify(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64, fn func(row T) error) (Change[T], error) {
	return r.mutate(ctx, tx, scope, id, expectedVersion, false, func(row T, _ time.Time) error {
		return fn(row)
	})
}

// SoftDelete marks the record deleted under the optimistic check.
func (r *Repository[T]) SoftDelete(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64) (T, error) {
	ch, err := r.SoftDeleteTracked(ctx, tx, scope, id, expectedVersion)
	return ch.After, err
}

// SoftDeleteTracked is SoftDelete returning the before and after states.
func (r *Repository[T]) SoftDeleteTracked(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64) (Change[T], error) {
	return r.mutate(ctx, tx, scope, id, expectedVersion, false, func(row T, now time.Time) error {
		b := row.Base()
		b.IsDeleted = true
		b.DeletedAt = &now
		return nil
	})
}

// Restore clears the soft-delete marker under the optimistic check.
func (r *Repository[T]) Restore(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64) (T, error) {
	ch, err := r.RestoreTracked(ctx, tx, scope, id, expectedVersion)
	return ch.After, err
}

// RestoreTracked is Restore returning the before and after states.
func (r *Repository[T]) RestoreTracked(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64) (Change[T], error) {
	return r.mutate(ctx, tx, scope, id, expectedVersion, true, func(row T, _ time.Time) error {
		b := row.Base()
		if !b.IsDeleted {
			return store.FieldInvalid("is_deleted", "record is not deleted")
		}
		b.IsDeleted = false
		b.DeletedAt = nil
		return nil
	})
}

// mutate is the load-check-write cycle shared by every mutation. The stored
// version must equal expectedVersion; on mismatch the transaction is marked
// failed and nothing is written.
func (r *Repository[T]) mutate(ctx context.Context, tx store.Tx, scope store.Scope, id uuid.UUID, expectedVersion int64, restoring bool, fn func(row T, now time.Time) error) (Change[T], error) {
	if err := scope.Validate(); err != nil {
		return Change[T]{}, err
	}

	current, err := r.table.Get(ctx, tx, scope.OrgID, id)
	if err != nil {
		return Change[T]{}, err
	}
	b := current.Base()

	if b.Version != expectedVersion {
		conflict := store.Conflict("stale version: record changed since it was read")
		tx.MarkFailed(conflict)
		return Change[T]{}, conflict
	}
	if b.IsDeleted && !restoring {
		return Change[T]{}, store.FieldInvalid("is_deleted", "record is deleted; restore it first")
	}

	before := r.schema.Clone(current)
	prev := *before.Base()

	now := r.now()
	if !now.After(prev.UpdatedAt) {
		// keep updated_at strictly increasing under a coarse or stalled clock
		now = prev.UpdatedAt.Add(time.Microsecond)
	}

	if err := fn(current, now); err != nil {
		return Change[T]{}, err
	}

	if b.ID != prev.ID || b.OrganizationID != prev.OrganizationID || !b.CreatedAt.Equal(prev.CreatedAt) || b.Version != prev.Version {
		return Change[T]{}, store.InvalidState("mutation changed system-managed fields")
	}

	b.UpdatedAt = now
	b.Version = expectedVersion + 1
	b.UpdatedBy = scope.Actor()

	if r.schema.Validate != nil {
		if err := r.schema.Validate(current); err != nil {
			return Change[T]{}, err
		}
	}

	if err := r.table.CompareAndSwap(ctx, tx, current, expectedVersion); err != nil {
		return Change[T]{}, err
	}
	return Change[T]{Before: before, After: r.schema.Clone(current)}, nil
}

// UpdateItem is one element of a bulk update.
type UpdateItem struct {
	ID              uuid.UUID
	ExpectedVersion int64
	Patch           store.Patch
}

// BulkCreate creates every payload or none. The first failure marks the
// transaction failed and is returned as a *BatchError.
func (r *Repository[T]) BulkCreate(ctx context.Context, tx store.Tx, scope store.Scope, payloads []T) ([]T, error) {
	created := make([]T, 0, len(payloads))
	for i, p := range payloads {
		row, err := r.Create(ctx, tx, scope, p)
		if err != nil {
			batchErr := &BatchError{Index: i, Err: err}
			tx.MarkFailed(batchErr)
			return nil, batchErr
		}
		created = append(created, row)
	}
	return created, nil
}

// BulkUpdate updates every item or none, with the same failure policy as
// BulkCreate.
func (r *Repository[T]) BulkUpdate(ctx context.Context, tx store.Tx, scope store.Scope, items []UpdateItem) ([]Change[T], error) {
	changes := make([]Change[T], 0, len(items))
	for i, item := range items {
		ch, err := r.UpdateTracked(ctx, tx, scope, item.ID, item.ExpectedVersion, item.Patch)
		if err != nil {
			batchErr := &BatchError{Index: i, Err: err}
			tx.MarkFailed(batchErr)
			return nil, batchErr
		}
		changes = append(changes, ch)
	}
	return changes, nil
}
