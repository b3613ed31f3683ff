package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/audit"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/store"
)

// PatchGuard inspects a patch before any storage work. Returning an error
// rejects the update.
type PatchGuard func(patch store.Patch) error

// PayloadGuard inspects a create payload before any storage work. It returns
// the payload to store, which may carry defaults, or an error rejecting it.
// Guards must not modify their argument.
type PayloadGuard[T models.Model] func(payload T) (T, error)

// Option configures a Service.
type Option func(*options)

type options struct {
	guards        []PatchGuard
	payloadGuards []any
}

// WithPatchGuard adds a guard run on every update patch.
func WithPatchGuard(g PatchGuard) Option {
	return func(o *options) { o.guards = append(o.guards, g) }
}

// WithPayloadGuard adds a guard run on every payload of Create and
// BulkCreate.
func WithPayloadGuard[T models.Model](g func(payload T) (T, error)) Option {
	return func(o *options) { o.payloadGuards = append(o.payloadGuards, PayloadGuard[T](g)) }
}

// Service is the generic CRUD service for one record type. Shapes are
// validated before a unit of work opens; every mutation is audited inside
// the same unit.
type Service[T models.Model] struct {
	runner        *Runner
	repo          *repository.Repository[T]
	audit         *audit.Recorder
	guards        []PatchGuard
	payloadGuards []PayloadGuard[T]
}

// New creates a service.
func New[T models.Model](runner *Runner, repo *repository.Repository[T], rec *audit.Recorder, opts ...Option) *Service[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	svc := &Service[T]{runner: runner, repo: repo, audit: rec, guards: o.guards}
	for _, g := range o.payloadGuards {
		pg, ok := g.(PayloadGuard[T])
		if !ok {
			panic(fmt.Sprintf("service: payload guard %T does not match %s records", g, repo.Schema().Entity))
		}
		svc.payloadGuards = append(svc.payloadGuards, pg)
	}
	return svc
}

// Repository exposes the underlying repository for composite operations.
func (s *Service[T]) Repository() *repository.Repository[T] {
	return s.repo
}

func (s *Service[T]) op(name string, scope store.Scope) Operation {
	return Operation{Name: s.repo.Schema().Entity + "." + name, Scope: scope}
}

// preparePayload runs the payload guards and the schema validation, and
// returns the payload to store.
func (s *Service[T]) preparePayload(payload T) (T, error) {
	var zero T
	if payload.Base().ID != uuid.Nil {
		return zero, store.FieldInvalid("id", "is assigned by the system")
	}
	for _, g := range s.payloadGuards {
		var err error
		if payload, err = g(payload); err != nil {
			return zero, err
		}
	}
	if v := s.repo.Schema().Validate; v != nil {
		if err := v(payload); err != nil {
			return zero, err
		}
	}
	return payload, nil
}

func (s *Service[T]) checkPatch(patch store.Patch) error {
	for _, g := range s.guards {
		if err := g(patch); err != nil {
			return err
		}
	}
	return s.repo.Schema().CheckPatch(patch)
}

// Create validates and stores payload.
func (s *Service[T]) Create(ctx context.Context, scope store.Scope, payload T) (T, error) {
	var created T
	payload, err := s.preparePayload(payload)
	if err != nil {
		return created, err
	}

	err = s.runner.Execute(ctx, s.op("create", scope), func(ctx context.Context, tx store.Tx) error {
		var err error
		created, err = s.repo.Create(ctx, tx, scope, payload)
		if err != nil {
			return err
		}
		return audit.Record(ctx, s.audit, tx, scope, s.repo.Schema(), models.AuditCreate, repository.Change[T]{After: created})
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return created, nil
}

// Get returns one record.
func (s *Service[T]) Get(ctx context.Context, scope store.Scope, id uuid.UUID, opts ...repository.GetOption) (T, error) {
	var row T
	err := s.runner.Execute(ctx, s.op("get", scope), func(ctx context.Context, tx store.Tx) error {
		var err error
		row, err = s.repo.GetByID(ctx, tx, scope, id, opts...)
		return err
	})
	return row, err
}

// List returns one page of records.
func (s *Service[T]) List(ctx context.Context, scope store.Scope, opts repository.ListOptions) (repository.Page[T], error) {
	if _, err := s.repo.Schema().Filters(opts.Filters); err != nil {
		return repository.Page[T]{}, err
	}

	var page repository.Page[T]
	err := s.runner.Execute(ctx, s.op("list", scope), func(ctx context.Context, tx store.Tx) error {
		var err error
		page, err = s.repo.List(ctx, tx, scope, opts)
		return err
	})
	return page, err
}

// Update applies patch if the record is still at expectedVersion.
func (s *Service[T]) Update(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64, patch store.Patch) (T, error) {
	var zero T
	if err := s.checkPatch(patch); err != nil {
		return zero, err
	}
	return s.mutate(ctx, scope, "update", models.AuditUpdate, func(ctx context.Context, tx store.Tx) (repository.Change[T], error) {
		return s.repo.UpdateTracked(ctx, tx, scope, id, expectedVersion, patch)
	})
}

// Delete soft-deletes the record.
func (s *Service[T]) Delete(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64) (T, error) {
	return s.mutate(ctx, scope, "delete", models.AuditDelete, func(ctx context.Context, tx store.Tx) (repository.Change[T], error) {
		return s.repo.SoftDeleteTracked(ctx, tx, scope, id, expectedVersion)
	})
}

// Restore reverses a soft delete.
func (s *Service[T]) Restore(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64) (T, error) {
	return s.mutate(ctx, scope, "restore", models.AuditRestore, func(ctx context.Context, tx store.Tx) (repository.Change[T], error) {
		return s.repo.RestoreTracked(ctx, tx, scope, id, expectedVersion)
	})
}

func (s *Service[T]) mutate(ctx context.Context, scope store.Scope, name string, action models.AuditAction, fn func(ctx context.Context, tx store.Tx) (repository.Change[T], error)) (T, error) {
	var after T
	err := s.runner.Execute(ctx, s.op(name, scope), func(ctx context.Context, tx store.Tx) error {
		ch, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		after = ch.After
		return audit.Record(ctx, s.audit, tx, scope, s.repo.Schema(), action, ch)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return after, nil
}

// BulkCreate creates every payload in one unit of work, or none.
func (s *Service[T]) BulkCreate(ctx context.Context, scope store.Scope, payloads []T) ([]T, error) {
	prepared := make([]T, len(payloads))
	for i, p := range payloads {
		var err error
		if prepared[i], err = s.preparePayload(p); err != nil {
			return nil, &repository.BatchError{Index: i, Err: err}
		}
	}

	var created []T
	err := s.runner.Execute(ctx, s.op("bulk_create", scope), func(ctx context.Context, tx store.Tx) error {
		rows, err := s.repo.BulkCreate(ctx, tx, scope, prepared)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := audit.Record(ctx, s.audit, tx, scope, s.repo.Schema(), models.AuditCreate, repository.Change[T]{After: row}); err != nil {
				return err
			}
		}
		created = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// BulkUpdate applies every item in one unit of work, or none.
func (s *Service[T]) BulkUpdate(ctx context.Context, scope store.Scope, items []repository.UpdateItem) ([]T, error) {
	for i, item := range items {
		if err := s.checkPatch(item.Patch); err != nil {
			return nil, &repository.BatchError{Index: i, Err: err}
		}
	}

	var updated []T
	err := s.runner.Execute(ctx, s.op("bulk_update", scope), func(ctx context.Context, tx store.Tx) error {
		changes, err := s.repo.BulkUpdate(ctx, tx, scope, items)
		if err != nil {
			return err
		}
		if err := audit.RecordAll(ctx, s.audit, tx, scope, s.repo.Schema(), models.AuditUpdate, changes); err != nil {
			return err
		}
		updated = make([]T, len(changes))
		for i, ch := range changes {
			updated[i] = ch.After
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// History returns the audit trail of one record.
func (s *Service[T]) History(ctx context.Context, scope store.Scope, id uuid.UUID) ([]*models.AuditRecord, error) {
	var records []*models.AuditRecord
	err := s.runner.Execute(ctx, s.op("history", scope), func(ctx context.Context, tx store.Tx) error {
		var err error
		records, err = s.audit.History(ctx, tx, scope, s.repo.Schema().Table, id)
		return err
	})
	return records, err
}
