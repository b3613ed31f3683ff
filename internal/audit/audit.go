// Package audit writes before/after snapshots of every mutation into the
// append-only audit log, inside the same unit of work as the mutation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Recorder appends audit records.
type Recorder struct {
	log   store.AuditLog
	newID func() (uuid.UUID, error)
}

// NewRecorder creates a recorder writing to log.
func NewRecorder(log store.AuditLog) *Recorder {
	return &Recorder{log: log, newID: uuid.NewV7}
}

// Record appends the audit record for one change. Creates carry no before
// snapshot. The record is stamped with the mutation's updated_at so history
// order matches version order.
//
// A failure here must abort the unit of work: callers return the error and
// the mutation is rolled back with it.
func Record[T models.Model](ctx context.Context, r *Recorder, tx store.Tx, scope store.Scope, schema *store.Schema[T], action models.AuditAction, change repository.Change[T]) error {
	after, err := json.Marshal(schema.Snapshot(change.After))
	if err != nil {
		return store.Storage("failed to encode audit snapshot", false, err)
	}

	var before json.RawMessage
	if action != models.AuditCreate {
		if before, err = json.Marshal(schema.Snapshot(change.Before)); err != nil {
			return store.Storage("failed to encode audit snapshot", false, err)
		}
	}

	id, err := r.newID()
	if err != nil {
		return store.Storage("failed to allocate audit id", false, err)
	}

	base := change.After.Base()
	rec := &models.AuditRecord{
		ID:             id,
		OrganizationID: scope.OrgID,
		ActorID:        scope.Actor(),
		Table:          schema.Table,
		RecordID:       base.ID,
		Action:         action,
		Before:         before,
		After:          after,
		RecordedAt:     base.UpdatedAt,
	}

	if err := r.log.Append(ctx, tx, rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// RecordAll records one entry per change.
func RecordAll[T models.Model](ctx context.Context, r *Recorder, tx store.Tx, scope store.Scope, schema *store.Schema[T], action models.AuditAction, changes []repository.Change[T]) error {
	for _, ch := range changes {
		if err := Record(ctx, r, tx, scope, schema, action, ch); err != nil {
			return err
		}
	}
	return nil
}

// History returns the audit trail of one record, oldest first.
func (r *Recorder) History(ctx context.Context, tx store.Tx, scope store.Scope, table string, recordID uuid.UUID) ([]*models.AuditRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return r.log.ListForRecord(ctx, tx, scope.OrgID, table, recordID)
}
