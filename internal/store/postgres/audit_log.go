package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

var _ store.AuditLog = (*AuditLog)(nil)

// AuditLog implements store.AuditLog on the audit_log table.
type AuditLog struct{}

// NewAuditLog creates a PostgreSQL-backed audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append inserts rec inside the caller's transaction.
func (a *AuditLog) Append(ctx context.Context, stx store.Tx, rec *models.AuditRecord) error {
	t, unlock, err := lock(stx)
	if err != nil {
		return err
	}
	defer unlock()

	query := `
		INSERT INTO audit_log (
			id, organization_id, actor_id, table_name, record_id,
			action, before, after, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err = t.tx.Exec(ctx, query,
		rec.ID,
		rec.OrganizationID,
		rec.ActorID,
		rec.Table,
		rec.RecordID,
		string(rec.Action),
		nullableJSON(rec.Before),
		nullableJSON(rec.After),
		rec.RecordedAt,
	)
	if err != nil {
		return mapPostgresError("append audit record", err)
	}
	return nil
}

// ListForRecord returns the audit trail of one record, oldest first.
func (a *AuditLog) ListForRecord(ctx context.Context, stx store.Tx, orgID uuid.UUID, table string, recordID uuid.UUID) ([]*models.AuditRecord, error) {
	t, unlock, err := lock(stx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	query := `
		SELECT id, organization_id, actor_id, table_name, record_id,
			action, before, after, recorded_at
		FROM audit_log
		WHERE organization_id = $1 AND table_name = $2 AND record_id = $3
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := t.tx.Query(ctx, query, orgID, table, recordID)
	if err != nil {
		return nil, mapPostgresError("list audit records", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var action string
		var before, after []byte
		err := rows.Scan(
			&rec.ID,
			&rec.OrganizationID,
			&rec.ActorID,
			&rec.Table,
			&rec.RecordID,
			&action,
			&before,
			&after,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, mapPostgresError("scan audit record", err)
		}
		rec.Action = models.AuditAction(action)
		rec.Before = json.RawMessage(before)
		rec.After = json.RawMessage(after)
		rec.RecordedAt = rec.RecordedAt.UTC()
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("iterate audit records", err)
	}

	return records, nil
}

// nullableJSON converts an empty snapshot to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
