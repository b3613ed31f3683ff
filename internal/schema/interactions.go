package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Interactions returns the schema of the contact_interactions table.
// Interactions are immutable once recorded, so no column is patchable.
func Interactions() *store.Schema[*models.ContactInteraction] {
	return &store.Schema[*models.ContactInteraction]{
		Table:  TableInteractions,
		Entity: "interaction",
		New:    func() *models.ContactInteraction { return &models.ContactInteraction{} },
		Clone: func(i *models.ContactInteraction) *models.ContactInteraction {
			clone := *i
			clone.Entity = cloneEntity(i.Entity)
			clone.EventID = cloneUUID(i.EventID)
			return &clone
		},
		Fields: []store.Field[*models.ContactInteraction]{
			store.Column("contact_id", func(i *models.ContactInteraction) *uuid.UUID { return &i.ContactID }, store.Filterable()),
			store.Column("actor_id", func(i *models.ContactInteraction) *uuid.UUID { return &i.ActorID }, store.Filterable()),
			store.Column("event_id", func(i *models.ContactInteraction) **uuid.UUID { return &i.EventID }),
			store.Column("kind", func(i *models.ContactInteraction) *models.InteractionKind { return &i.Kind }, store.Filterable()),
			store.Column("outcome", func(i *models.ContactInteraction) *models.Outcome { return &i.Outcome }, store.Filterable()),
			store.Column("occurred_at", func(i *models.ContactInteraction) *time.Time { return &i.OccurredAt }),
			store.Column("notes", func(i *models.ContactInteraction) *string { return &i.Notes }),
		},
		Validate: validateInteraction,
	}
}

func validateInteraction(i *models.ContactInteraction) error {
	var p problems
	if i.ContactID == uuid.Nil {
		p.add("contact_id", "is required")
	}
	if i.ActorID == uuid.Nil {
		p.add("actor_id", "is required")
	}
	if !i.Kind.Valid() {
		p.add("kind", "is not a known interaction kind")
	}
	if !i.Outcome.Valid() {
		p.add("outcome", "must be one of positive, neutral, negative")
	}
	if i.OccurredAt.IsZero() {
		p.add("occurred_at", "is required")
	}
	return p.err()
}
