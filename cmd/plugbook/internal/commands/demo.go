package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

type DemoCmd struct {
	Interactions int `help:"Number of positive interactions to record" default:"4"`
}

func (d *DemoCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	scope := store.NewScope(uuid.New(), uuid.New())
	engine := s.res.Contacts

	fmt.Printf("Organization %s\n\n", scope.OrgID)

	c, err := engine.Create(s.ctx, scope, &models.Contact{FirstName: "Ada", LastName: "Lovelace", Company: "Analytical Engines"})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	printContact(c)

	if _, err := engine.Submit(s.ctx, scope, c.ID, c.Version); err != nil {
		fmt.Printf("\nSubmitting a target is refused: %v\n", err)
	}

	for i := range d.Interactions {
		kind := models.InteractionKinds[i%len(models.InteractionKinds)]
		rec, err := engine.RecordInteraction(s.ctx, scope, c.ID, &models.ContactInteraction{
			Kind:       kind,
			Outcome:    models.OutcomePositive,
			OccurredAt: time.Now().UTC().Add(-time.Duration(d.Interactions-i) * time.Hour),
		})
		if err != nil {
			return fmt.Errorf("failed to record interaction: %w", err)
		}
		c = rec.Contact
		fmt.Printf("\nAfter %s: type=%s status=%s score=%d\n", kind, c.ContactType, c.Status, c.LeadScore)
	}

	if c, err = engine.Submit(s.ctx, scope, c.ID, c.Version); err != nil {
		return fmt.Errorf("failed to submit contact: %w", err)
	}
	fmt.Println()
	printContact(c)

	history, err := engine.History(s.ctx, scope, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	fmt.Println()
	printHistory(history)
	return nil
}
