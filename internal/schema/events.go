package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Events returns the schema of the events table. current_attendees is
// maintained by the event service and cannot be patched by callers.
func Events() *store.Schema[*models.Event] {
	return &store.Schema[*models.Event]{
		Table:  TableEvents,
		Entity: "event",
		New:    func() *models.Event { return &models.Event{} },
		Clone: func(e *models.Event) *models.Event {
			clone := *e
			clone.Entity = cloneEntity(e.Entity)
			return &clone
		},
		Fields: []store.Field[*models.Event]{
			store.Column("name", func(e *models.Event) *string { return &e.Name }, store.Patchable(), store.Filterable()),
			store.Column("location", func(e *models.Event) *string { return &e.Location }, store.Patchable(), store.Filterable()),
			store.Column("starts_at", func(e *models.Event) *time.Time { return &e.StartsAt }, store.Patchable()),
			store.Column("max_attendees", func(e *models.Event) *int { return &e.MaxAttendees }, store.Patchable()),
			store.Column("current_attendees", func(e *models.Event) *int { return &e.CurrentAttendees }),
		},
		Validate: validateEvent,
	}
}

func validateEvent(e *models.Event) error {
	var p problems
	if blank(e.Name) {
		p.add("name", "is required")
	}
	p.check("name", e.Name, "max=200", "must be at most 200 characters")
	if e.StartsAt.IsZero() {
		p.add("starts_at", "is required")
	}
	if e.MaxAttendees < 0 {
		p.add("max_attendees", "must not be negative")
	}
	if e.CurrentAttendees < 0 {
		p.add("current_attendees", "must not be negative")
	}
	if e.CurrentAttendees > e.MaxAttendees {
		p.add("max_attendees", "must not be below current attendees")
	}
	return p.err()
}

// Attendees returns the schema of the event_attendees table.
func Attendees() *store.Schema[*models.EventAttendee] {
	return &store.Schema[*models.EventAttendee]{
		Table:  TableAttendees,
		Entity: "attendee",
		New:    func() *models.EventAttendee { return &models.EventAttendee{} },
		Clone: func(a *models.EventAttendee) *models.EventAttendee {
			clone := *a
			clone.Entity = cloneEntity(a.Entity)
			return &clone
		},
		Fields: []store.Field[*models.EventAttendee]{
			store.Column("event_id", func(a *models.EventAttendee) *uuid.UUID { return &a.EventID }, store.Filterable()),
			store.Column("contact_id", func(a *models.EventAttendee) *uuid.UUID { return &a.ContactID }, store.Filterable()),
			store.Column("status", func(a *models.EventAttendee) *models.AttendeeStatus { return &a.Status }, store.Patchable(), store.Filterable()),
		},
		Validate: validateAttendee,
	}
}

func validateAttendee(a *models.EventAttendee) error {
	var p problems
	if a.EventID == uuid.Nil {
		p.add("event_id", "is required")
	}
	if a.ContactID == uuid.Nil {
		p.add("contact_id", "is required")
	}
	if a.Status != models.AttendeeRegistered && a.Status != models.AttendeeCancelled {
		p.add("status", "must be registered or cancelled")
	}
	return p.err()
}
