package store

import (
	"github.com/google/uuid"
)

// Scope is the verified identity a call runs under. The organization is the
// only source of tenancy; payload fields never override it.
type Scope struct {
	OrgID   uuid.UUID
	ActorID uuid.UUID // uuid.Nil for system-initiated writes
}

// NewScope returns a scope for the given organization and actor.
func NewScope(orgID, actorID uuid.UUID) Scope {
	return Scope{OrgID: orgID, ActorID: actorID}
}

// Actor returns the actor id, or nil for system writes.
func (s Scope) Actor() *uuid.UUID {
	if s.ActorID == uuid.Nil {
		return nil
	}
	id := s.ActorID
	return &id
}

// Validate checks the scope carries an organization.
func (s Scope) Validate() error {
	if s.OrgID == uuid.Nil {
		return InvalidState("scope has no organization")
	}
	return nil
}
