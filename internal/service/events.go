package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/audit"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/store"
)

// EventService manages events and their attendees. It keeps
// current_attendees equal to the number of registered attendees and never
// above max_attendees, across both tables in one unit of work.
type EventService struct {
	*Service[*models.Event]

	runner    *Runner
	events    *repository.Repository[*models.Event]
	attendees *repository.Repository[*models.EventAttendee]
	contacts  *repository.Repository[*models.Contact]
	audit     *audit.Recorder
}

// NewEventService creates an event service.
func NewEventService(
	runner *Runner,
	events *repository.Repository[*models.Event],
	attendees *repository.Repository[*models.EventAttendee],
	contacts *repository.Repository[*models.Contact],
	rec *audit.Recorder,
) *EventService {
	return &EventService{
		Service: New(runner, events, rec,
			WithPayloadGuard(newEvent),
			WithPatchGuard(DenyFields("current_attendees")),
		),
		runner:    runner,
		events:    events,
		attendees: attendees,
		contacts:  contacts,
		audit:     rec,
	}
}

// newEvent guards event creates: an event starts with no attendees.
func newEvent(event *models.Event) (*models.Event, error) {
	if event.CurrentAttendees != 0 {
		return nil, store.FieldInvalid("current_attendees", "is maintained by the system")
	}
	return event, nil
}

// RegisterAttendee registers a live contact for an event with free capacity.
// Registering the same contact twice fails with a Conflict.
func (s *EventService) RegisterAttendee(ctx context.Context, scope store.Scope, eventID, contactID uuid.UUID) (*models.EventAttendee, error) {
	var attendee *models.EventAttendee

	op := Operation{Name: "event.register_attendee", Scope: scope, RetryOnConflict: true}
	err := s.runner.Execute(ctx, op, func(ctx context.Context, tx store.Tx) error {
		event, err := s.events.GetByID(ctx, tx, scope, eventID)
		if err != nil {
			return err
		}
		if _, err := s.contacts.GetByID(ctx, tx, scope, contactID); err != nil {
			return err
		}

		existing, err := s.attendees.List(ctx, tx, scope, repository.ListOptions{
			Filters: map[string]any{
				"event_id":   eventID,
				"contact_id": contactID,
				"status":     models.AttendeeRegistered,
			},
			Page: repository.PageRequest{Limit: 1},
		})
		if err != nil {
			return err
		}
		if existing.Total > 0 {
			return store.Duplicate("contact is already registered for this event")
		}

		if event.CurrentAttendees >= event.MaxAttendees {
			return store.FieldInvalid("event_id", "event is at capacity")
		}

		attendee, err = s.attendees.Create(ctx, tx, scope, &models.EventAttendee{
			EventID:   eventID,
			ContactID: contactID,
			Status:    models.AttendeeRegistered,
		})
		if err != nil {
			return err
		}
		if err := audit.Record(ctx, s.audit, tx, scope, s.attendees.Schema(), models.AuditCreate, repository.Change[*models.EventAttendee]{After: attendee}); err != nil {
			return err
		}

		return s.adjustAttendance(ctx, tx, scope, event, +1)
	})
	if err != nil {
		return nil, err
	}
	return attendee, nil
}

// CancelAttendee cancels a registration and frees its seat.
func (s *EventService) CancelAttendee(ctx context.Context, scope store.Scope, attendeeID uuid.UUID) (*models.EventAttendee, error) {
	var cancelled *models.EventAttendee

	op := Operation{Name: "event.cancel_attendee", Scope: scope, RetryOnConflict: true}
	err := s.runner.Execute(ctx, op, func(ctx context.Context, tx store.Tx) error {
		attendee, err := s.attendees.GetByID(ctx, tx, scope, attendeeID)
		if err != nil {
			return err
		}
		if attendee.Status != models.AttendeeRegistered {
			return store.FieldInvalid("status", "attendee is not registered")
		}

		ch, err := s.attendees.UpdateTracked(ctx, tx, scope, attendeeID, attendee.Version, store.Patch{"status": models.AttendeeCancelled})
		if err != nil {
			return err
		}
		if err := audit.Record(ctx, s.audit, tx, scope, s.attendees.Schema(), models.AuditUpdate, ch); err != nil {
			return err
		}
		cancelled = ch.After

		event, err := s.events.GetByID(ctx, tx, scope, attendee.EventID)
		if err != nil {
			return err
		}
		return s.adjustAttendance(ctx, tx, scope, event, -1)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ListAttendees lists the registrations of one event.
func (s *EventService) ListAttendees(ctx context.Context, scope store.Scope, eventID uuid.UUID, page repository.PageRequest) (repository.Page[*models.EventAttendee], error) {
	var result repository.Page[*models.EventAttendee]
	err := s.runner.Execute(ctx, Operation{Name: "event.list_attendees", Scope: scope}, func(ctx context.Context, tx store.Tx) error {
		if _, err := s.events.GetByID(ctx, tx, scope, eventID); err != nil {
			return err
		}
		var err error
		result, err = s.attendees.GetByField(ctx, tx, scope, "event_id", eventID, page)
		return err
	})
	return result, err
}

func (s *EventService) adjustAttendance(ctx context.Context, tx store.Tx, scope store.Scope, event *models.Event, delta int) error {
	ch, err := s.events.Modify(ctx, tx, scope, event.ID, event.Version, func(e *models.Event) error {
		e.CurrentAttendees += delta
		return nil
	})
	if err != nil {
		return err
	}
	return audit.Record(ctx, s.audit, tx, scope, s.events.Schema(), models.AuditUpdate, ch)
}

// DenyFields returns a guard rejecting patches to the named fields.
func DenyFields(fields ...string) PatchGuard {
	return func(patch store.Patch) error {
		var problems []store.FieldError
		for _, f := range fields {
			if _, ok := patch[f]; ok {
				problems = append(problems, store.FieldError{Field: f, Message: "is maintained by the system"})
			}
		}
		if len(problems) > 0 {
			return store.Validation("invalid patch", problems...)
		}
		return nil
	}
}
