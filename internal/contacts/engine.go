// Package contacts implements the contact lifecycle: the target, contact and
// plug stages, interaction logging and lead scoring.
package contacts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/plugbook/internal/audit"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/service"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to age interactions when scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns every write to contact_type, lead_score and last_interaction.
// Generic updates through the engine reject those fields.
type Engine struct {
	*service.Service[*models.Contact]

	runner       *service.Runner
	contacts     *repository.Repository[*models.Contact]
	interactions *repository.Repository[*models.ContactInteraction]
	audit        *audit.Recorder
	policy       config.ScoringPolicy
	now          func() time.Time
}

// NewEngine creates a lifecycle engine.
func NewEngine(
	runner *service.Runner,
	contacts *repository.Repository[*models.Contact],
	interactions *repository.Repository[*models.ContactInteraction],
	rec *audit.Recorder,
	policy config.ScoringPolicy,
	opts ...Option,
) *Engine {
	e := &Engine{
		Service: service.New(runner, contacts, rec,
			service.WithPayloadGuard(newContact(contacts.Schema().Clone)),
			service.WithPatchGuard(service.DenyFields("lead_score", "contact_type", "last_interaction")),
		),
		runner:       runner,
		contacts:     contacts,
		interactions: interactions,
		audit:        rec,
		policy:       policy,
		now:          repository.SystemClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newContact is the payload guard for every contact create path. The type
// defaults to target and the status to cold_lead; the score always starts at
// zero. Plug is only reached through Submit.
func newContact(clone func(*models.Contact) *models.Contact) func(*models.Contact) (*models.Contact, error) {
	return func(payload *models.Contact) (*models.Contact, error) {
		if payload.LeadScore != 0 {
			return nil, store.FieldInvalid("lead_score", "is computed from interactions")
		}
		if payload.LastInteraction != nil {
			return nil, store.FieldInvalid("last_interaction", "is set by recording an interaction")
		}
		if payload.ContactType == models.ContactTypePlug {
			return nil, store.FieldInvalid("contact_type", "plug is reached by submitting a contact")
		}

		c := clone(payload)
		if c.ContactType == "" {
			c.ContactType = models.ContactTypeTarget
		}
		if c.Status == "" {
			c.Status = models.ContactStatusColdLead
		}
		return c, nil
	}
}

// Delete soft-deletes the contact and every live interaction it has.
func (e *Engine) Delete(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64) (*models.Contact, error) {
	var deleted *models.Contact

	err := e.runner.Execute(ctx, service.Operation{Name: "contact.delete", Scope: scope}, func(ctx context.Context, tx store.Tx) error {
		ch, err := e.contacts.SoftDeleteTracked(ctx, tx, scope, id, expectedVersion)
		if err != nil {
			return err
		}
		if err := audit.Record(ctx, e.audit, tx, scope, e.contacts.Schema(), models.AuditDelete, ch); err != nil {
			return err
		}
		deleted = ch.After

		history, err := e.interactions.ListAll(ctx, tx, scope, repository.ListOptions{
			Filters: map[string]any{"contact_id": id},
		})
		if err != nil {
			return err
		}
		for _, in := range history {
			ich, err := e.interactions.SoftDeleteTracked(ctx, tx, scope, in.ID, in.Version)
			if err != nil {
				return err
			}
			if err := audit.Record(ctx, e.audit, tx, scope, e.interactions.Schema(), models.AuditDelete, ich); err != nil {
				return err
			}
		}

		zerolog.Ctx(ctx).Debug().Int("interactions", len(history)).Msg("Cascaded contact delete")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Restore reverses Delete. Interactions deleted together with the contact
// come back with it.
func (e *Engine) Restore(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64) (*models.Contact, error) {
	var restored *models.Contact

	err := e.runner.Execute(ctx, service.Operation{Name: "contact.restore", Scope: scope}, func(ctx context.Context, tx store.Tx) error {
		ch, err := e.contacts.RestoreTracked(ctx, tx, scope, id, expectedVersion)
		if err != nil {
			return err
		}
		if err := audit.Record(ctx, e.audit, tx, scope, e.contacts.Schema(), models.AuditRestore, ch); err != nil {
			return err
		}
		restored = ch.After
		deletedAt := ch.Before.DeletedAt

		history, err := e.interactions.ListAll(ctx, tx, scope, repository.ListOptions{
			Filters:        map[string]any{"contact_id": id},
			IncludeDeleted: true,
		})
		if err != nil {
			return err
		}
		for _, in := range history {
			// the cascade stamps interactions at or after the contact
			if !in.IsDeleted || in.DeletedAt == nil || deletedAt == nil || in.DeletedAt.Before(*deletedAt) {
				continue
			}
			ich, err := e.interactions.RestoreTracked(ctx, tx, scope, in.ID, in.Version)
			if err != nil {
				return err
			}
			if err := audit.Record(ctx, e.audit, tx, scope, e.interactions.Schema(), models.AuditRestore, ich); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// Convert moves a target to contact.
func (e *Engine) Convert(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64) (*models.Contact, error) {
	return e.transition(ctx, scope, "contact.convert", id, expectedVersion, models.ContactTypeTarget, models.ContactTypeContact)
}

// Submit moves a contact to plug.
func (e *Engine) Submit(ctx context.Context, scope store.Scope, id uuid.UUID, expectedVersion int64) (*models.Contact, error) {
	return e.transition(ctx, scope, "contact.submit", id, expectedVersion, models.ContactTypeContact, models.ContactTypePlug)
}

func (e *Engine) transition(ctx context.Context, scope store.Scope, name string, id uuid.UUID, expectedVersion int64, from, to models.ContactType) (*models.Contact, error) {
	var after *models.Contact

	err := e.runner.Execute(ctx, service.Operation{Name: name, Scope: scope}, func(ctx context.Context, tx store.Tx) error {
		ch, err := e.contacts.Modify(ctx, tx, scope, id, expectedVersion, func(c *models.Contact) error {
			if c.ContactType != from {
				return store.FieldInvalid("contact_type", "cannot move from %s to %s", c.ContactType, to)
			}
			c.ContactType = to
			return nil
		})
		if err != nil {
			return err
		}
		after = ch.After
		return audit.Record(ctx, e.audit, tx, scope, e.contacts.Schema(), models.AuditUpdate, ch)
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

// Recorded is the outcome of RecordInteraction.
type Recorded struct {
	Interaction *models.ContactInteraction
	Contact     *models.Contact
}

// RecordInteraction appends an interaction to a contact and rescores it in
// the same unit of work. A target is promoted to contact by its first
// interaction. Lead statuses follow the new score; client statuses are kept.
//
// The actor defaults to the caller and the time to now.
func (e *Engine) RecordInteraction(ctx context.Context, scope store.Scope, contactID uuid.UUID, payload *models.ContactInteraction) (*Recorded, error) {
	in := e.interactions.Schema().Clone(payload)
	if in.ID != uuid.Nil {
		return nil, store.FieldInvalid("id", "is assigned by the system")
	}
	if in.ContactID != uuid.Nil && in.ContactID != contactID {
		return nil, store.FieldInvalid("contact_id", "does not match the contact")
	}
	in.ContactID = contactID
	if in.ActorID == uuid.Nil {
		in.ActorID = scope.ActorID
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = e.now()
	}
	if err := e.interactions.Schema().Validate(in); err != nil {
		return nil, err
	}

	var result Recorded

	op := service.Operation{Name: "contact.record_interaction", Scope: scope, RetryOnConflict: true}
	err := e.runner.Execute(ctx, op, func(ctx context.Context, tx store.Tx) error {
		contact, err := e.contacts.GetByID(ctx, tx, scope, contactID)
		if err != nil {
			return err
		}

		created, err := e.interactions.Create(ctx, tx, scope, in)
		if err != nil {
			return err
		}
		if err := audit.Record(ctx, e.audit, tx, scope, e.interactions.Schema(), models.AuditCreate, repository.Change[*models.ContactInteraction]{After: created}); err != nil {
			return err
		}

		history, err := e.interactions.ListAll(ctx, tx, scope, repository.ListOptions{
			Filters: map[string]any{"contact_id": contactID},
		})
		if err != nil {
			return err
		}
		score := Score(e.policy, history, e.now())

		ch, err := e.contacts.Modify(ctx, tx, scope, contactID, contact.Version, func(c *models.Contact) error {
			if c.ContactType == models.ContactTypeTarget {
				c.ContactType = models.ContactTypeContact
			}
			if c.LastInteraction == nil || created.OccurredAt.After(*c.LastInteraction) {
				at := created.OccurredAt
				c.LastInteraction = &at
			}
			c.LeadScore = score
			if c.Status.IsLead() {
				c.Status = Classify(e.policy, score)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := audit.Record(ctx, e.audit, tx, scope, e.contacts.Schema(), models.AuditUpdate, ch); err != nil {
			return err
		}

		zerolog.Ctx(ctx).Debug().
			Str("contact_id", contactID.String()).
			Int("lead_score", score).
			Str("contact_type", string(ch.After.ContactType)).
			Msg("Recorded interaction")

		result = Recorded{Interaction: created, Contact: ch.After}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListInteractions returns one page of a live contact's interactions, oldest
// first.
func (e *Engine) ListInteractions(ctx context.Context, scope store.Scope, contactID uuid.UUID, page repository.PageRequest) (repository.Page[*models.ContactInteraction], error) {
	var result repository.Page[*models.ContactInteraction]
	err := e.runner.Execute(ctx, service.Operation{Name: "contact.list_interactions", Scope: scope}, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.contacts.GetByID(ctx, tx, scope, contactID); err != nil {
			return err
		}
		var err error
		result, err = e.interactions.GetByField(ctx, tx, scope, "contact_id", contactID, page)
		return err
	})
	return result, err
}
