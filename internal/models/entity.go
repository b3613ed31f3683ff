package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity holds the fields shared by every persisted record.
// Concrete records embed it so the repository and service layers can be
// written once against anything with tenancy, soft delete and a version.
type Entity struct {
	ID             uuid.UUID // UUIDv7, assigned on create
	OrganizationID uuid.UUID // tenant, immutable after create
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDeleted      bool
	DeletedAt      *time.Time
	Version        int64      // starts at 1, +1 per committed mutation
	CreatedBy      *uuid.UUID // nil for system writes
	UpdatedBy      *uuid.UUID
}

// Base returns the embedded entity. It is promoted to every record that
// embeds Entity, which is what makes *Record satisfy Model.
func (e *Entity) Base() *Entity {
	return e
}

// Model is satisfied by a pointer to any record embedding Entity.
type Model interface {
	Base() *Entity
}
