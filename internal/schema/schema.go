// Package schema declares the storage schema of every record type: table,
// columns, which columns can be filtered or patched, and record validation.
package schema

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Table names.
const (
	TableContacts     = "contacts"
	TableInteractions = "contact_interactions"
	TableEvents       = "events"
	TableAttendees    = "event_attendees"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneEntity(e models.Entity) models.Entity {
	e.DeletedAt = cloneTime(e.DeletedAt)
	e.CreatedBy = cloneUUID(e.CreatedBy)
	e.UpdatedBy = cloneUUID(e.UpdatedBy)
	return e
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// problems collects field errors and converts them to a ValidationError.
type problems []store.FieldError

func (p *problems) add(field, msg string) {
	*p = append(*p, store.FieldError{Field: field, Message: msg})
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return store.Validation("invalid record", p...)
}

// check adds msg for field when value fails the validator tag.
func (p *problems) check(field string, value any, tag, msg string) {
	if err := validate.Var(value, tag); err != nil {
		p.add(field, msg)
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
