package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a networking event contacts can attend.
type Event struct {
	Entity

	Name             string
	Location         string
	StartsAt         time.Time
	MaxAttendees     int
	CurrentAttendees int
}

// AttendeeStatus is the registration state of an event attendee.
type AttendeeStatus string

const (
	AttendeeRegistered AttendeeStatus = "registered"
	AttendeeCancelled  AttendeeStatus = "cancelled"
)

// EventAttendee links a contact to an event.
type EventAttendee struct {
	Entity

	EventID   uuid.UUID
	ContactID uuid.UUID
	Status    AttendeeStatus
}
