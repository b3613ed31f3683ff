package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
)

type EventCmd struct {
	Create    EventCreateCmd    `cmd:"" help:"Create an event"`
	Get       EventGetCmd       `cmd:"" help:"Show an event"`
	Register  EventRegisterCmd  `cmd:"" help:"Register a contact for an event"`
	Cancel    EventCancelCmd    `cmd:"" help:"Cancel a registration"`
	Attendees EventAttendeesCmd `cmd:"" help:"List the attendees of an event"`
}

type EventCreateCmd struct {
	ScopeFlags `embed:""`

	Name         string `help:"Event name" required:""`
	Location     string `help:"Location"`
	StartsAt     string `help:"Start time (RFC3339)" required:""`
	MaxAttendees int    `help:"Capacity" default:"50"`
}

func (c *EventCreateCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	startsAt, err := time.Parse(time.RFC3339, c.StartsAt)
	if err != nil {
		return fmt.Errorf("invalid --starts-at: %w", err)
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	event, err := s.res.Events.Create(s.ctx, scope, &models.Event{
		Name:         c.Name,
		Location:     c.Location,
		StartsAt:     startsAt.UTC(),
		MaxAttendees: c.MaxAttendees,
	})
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	printEvent(event)
	return nil
}

type EventGetCmd struct {
	ScopeFlags `embed:""`

	ID string `arg:"" help:"Event ID"`
}

func (c *EventGetCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("event", c.ID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	event, err := s.res.Events.Get(s.ctx, scope, id)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	printEvent(event)
	return nil
}

type EventRegisterCmd struct {
	ScopeFlags `embed:""`

	EventID   string `arg:"" help:"Event ID"`
	ContactID string `arg:"" help:"Contact ID"`
}

func (c *EventRegisterCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	eventID, err := parseID("event", c.EventID)
	if err != nil {
		return err
	}
	contactID, err := parseID("contact", c.ContactID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	attendee, err := s.res.Events.RegisterAttendee(s.ctx, scope, eventID, contactID)
	if err != nil {
		return fmt.Errorf("failed to register attendee: %w", err)
	}

	fmt.Printf("Registered attendee %s\n", attendee.ID)
	return nil
}

type EventCancelCmd struct {
	ScopeFlags `embed:""`

	AttendeeID string `arg:"" help:"Attendee ID"`
}

func (c *EventCancelCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("attendee", c.AttendeeID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	attendee, err := s.res.Events.CancelAttendee(s.ctx, scope, id)
	if err != nil {
		return fmt.Errorf("failed to cancel attendee: %w", err)
	}

	fmt.Printf("Cancelled attendee %s\n", attendee.ID)
	return nil
}

type EventAttendeesCmd struct {
	ScopeFlags `embed:""`

	EventID string `arg:"" help:"Event ID"`
	Limit   int    `help:"Page size" default:"50"`
	Token   string `help:"Page token from a previous listing"`
}

func (c *EventAttendeesCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("event", c.EventID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	page, err := s.res.Events.ListAttendees(s.ctx, scope, id, repository.PageRequest{Limit: c.Limit, Token: c.Token})
	if err != nil {
		return fmt.Errorf("failed to list attendees: %w", err)
	}

	fmt.Printf("Attendees (%d of %d):\n", len(page.Items), page.Total)
	fmt.Printf("%-36s %-36s %-10s\n", "Attendee ID", "Contact ID", "Status")
	fmt.Println(strings.Repeat("─", 84))
	for _, a := range page.Items {
		fmt.Printf("%-36s %-36s %-10s\n", a.ID, a.ContactID, a.Status)
	}
	printNext(page.NextToken)
	return nil
}

func printEvent(e *models.Event) {
	fmt.Printf("ID:        %s\n", e.ID)
	fmt.Printf("Name:      %s\n", e.Name)
	if e.Location != "" {
		fmt.Printf("Location:  %s\n", e.Location)
	}
	fmt.Printf("Starts at: %s\n", e.StartsAt.Format(time.RFC3339))
	fmt.Printf("Attendees: %d/%d\n", e.CurrentAttendees, e.MaxAttendees)
	fmt.Printf("Version:   %d\n", e.Version)
}
