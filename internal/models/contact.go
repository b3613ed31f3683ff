package models

import (
	"time"

	"github.com/google/uuid"
)

// ContactType is the lifecycle stage of a contact.
type ContactType string

const (
	ContactTypeTarget  ContactType = "target"  // someone the user wants to meet
	ContactTypeContact ContactType = "contact" // met at least once
	ContactTypePlug    ContactType = "plug"    // submitted as a referral source
)

// Valid reports whether t is a known contact type.
func (t ContactType) Valid() bool {
	switch t {
	case ContactTypeTarget, ContactTypeContact, ContactTypePlug:
		return true
	}
	return false
}

// ContactStatus classifies the commercial relationship with a contact.
type ContactStatus string

const (
	ContactStatusNewClient      ContactStatus = "new_client"
	ContactStatusExistingClient ContactStatus = "existing_client"
	ContactStatusHotLead        ContactStatus = "hot_lead"
	ContactStatusColdLead       ContactStatus = "cold_lead"
)

// Valid reports whether s is a known contact status.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactStatusNewClient, ContactStatusExistingClient, ContactStatusHotLead, ContactStatusColdLead:
		return true
	}
	return false
}

// IsLead is true for the statuses derived from the lead score.
func (s ContactStatus) IsLead() bool {
	return s == ContactStatusHotLead || s == ContactStatusColdLead
}

// Contact is a person tracked by an organization.
type Contact struct {
	Entity

	FirstName string
	LastName  string
	Email     string
	Company   string
	Title     string
	Phone     string
	Notes     string

	ContactType     ContactType
	Status          ContactStatus
	LeadScore       int // 0..100, written only by the lifecycle engine
	LastInteraction *time.Time
}

// InteractionKind is the type of a networking touchpoint.
type InteractionKind string

const (
	InteractionMeeting      InteractionKind = "meeting"
	InteractionCall         InteractionKind = "call"
	InteractionEmail        InteractionKind = "email"
	InteractionEvent        InteractionKind = "event"
	InteractionIntroduction InteractionKind = "introduction"
	InteractionFollowUp     InteractionKind = "follow_up"
)

// InteractionKinds lists every known kind; its length bounds type diversity.
var InteractionKinds = []InteractionKind{
	InteractionMeeting,
	InteractionCall,
	InteractionEmail,
	InteractionEvent,
	InteractionIntroduction,
	InteractionFollowUp,
}

// Valid reports whether k is a known interaction kind.
func (k InteractionKind) Valid() bool {
	for _, known := range InteractionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Outcome is the explicit signal recorded with an interaction.
type Outcome string

const (
	OutcomePositive Outcome = "positive"
	OutcomeNeutral  Outcome = "neutral"
	OutcomeNegative Outcome = "negative"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomePositive || o == OutcomeNeutral || o == OutcomeNegative
}

// Signal maps the outcome onto -1, 0 or +1.
func (o Outcome) Signal() float64 {
	switch o {
	case OutcomePositive:
		return 1
	case OutcomeNegative:
		return -1
	}
	return 0
}

// ContactInteraction is the immutable record of one touchpoint with a contact.
type ContactInteraction struct {
	Entity

	ContactID  uuid.UUID
	ActorID    uuid.UUID
	EventID    *uuid.UUID
	Kind       InteractionKind
	Outcome    Outcome
	OccurredAt time.Time
	Notes      string
}
