package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutation captured by an audit record.
type AuditAction string

const (
	AuditCreate  AuditAction = "create"
	AuditUpdate  AuditAction = "update"
	AuditDelete  AuditAction = "delete"
	AuditRestore AuditAction = "restore"
)

// AuditRecord is an append-only before/after snapshot of one mutation.
// Before is empty for creates.
type AuditRecord struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ActorID        *uuid.UUID
	Table          string
	RecordID       uuid.UUID
	Action         AuditAction
	Before         json.RawMessage
	After          json.RawMessage
	RecordedAt     time.Time
}
