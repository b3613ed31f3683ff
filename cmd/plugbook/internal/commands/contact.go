package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/store"
)

type ContactCmd struct {
	Create       ContactCreateCmd       `cmd:"" help:"Create a contact"`
	Get          ContactGetCmd          `cmd:"" help:"Show a contact"`
	List         ContactListCmd         `cmd:"" help:"List contacts"`
	Update       ContactUpdateCmd       `cmd:"" help:"Update contact fields"`
	Convert      ContactVersionedCmd    `cmd:"" help:"Convert a target into a contact"`
	Submit       ContactVersionedCmd    `cmd:"" help:"Submit a contact as a plug"`
	Delete       ContactVersionedCmd    `cmd:"" help:"Soft-delete a contact and its interactions"`
	Restore      ContactVersionedCmd    `cmd:"" help:"Restore a deleted contact and its interactions"`
	Interact     ContactInteractCmd     `cmd:"" help:"Record an interaction with a contact"`
	Interactions ContactInteractionsCmd `cmd:"" help:"List the interactions of a contact"`
	History      ContactHistoryCmd      `cmd:"" help:"Show the audit history of a contact"`
	Export       ContactExportCmd       `cmd:"" help:"Write an organization's contacts and interactions to a compressed archive"`
	Verify       ContactVerifyCmd       `cmd:"" help:"Check an exported archive against its checksum"`
}

type ContactCreateCmd struct {
	ScopeFlags `embed:""`

	FirstName string `help:"First name" required:""`
	LastName  string `help:"Last name"`
	Email     string `help:"Email address"`
	Company   string `help:"Company"`
	Title     string `help:"Job title"`
	Phone     string `help:"Phone number"`
	Notes     string `help:"Free-form notes"`
	Type      string `help:"Contact type (target, contact); use submit to make a plug" default:"target" enum:"target,contact"`
	Status    string `help:"Status (new_client, existing_client, hot_lead, cold_lead)" default:"cold_lead" enum:"new_client,existing_client,hot_lead,cold_lead"`
}

func (c *ContactCreateCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	created, err := s.res.Contacts.Create(s.ctx, scope, &models.Contact{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		Company:     c.Company,
		Title:       c.Title,
		Phone:       c.Phone,
		Notes:       c.Notes,
		ContactType: models.ContactType(c.Type),
		Status:      models.ContactStatus(c.Status),
	})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	printContact(created)
	return nil
}

type ContactGetCmd struct {
	ScopeFlags `embed:""`

	ID             string `arg:"" help:"Contact ID"`
	IncludeDeleted bool   `help:"Show the contact even if it is deleted"`
}

func (c *ContactGetCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("contact", c.ID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []repository.GetOption
	if c.IncludeDeleted {
		opts = append(opts, repository.IncludeDeleted())
	}
	contact, err := s.res.Contacts.Get(s.ctx, scope, id, opts...)
	if err != nil {
		return fmt.Errorf("failed to get contact: %w", err)
	}

	printContact(contact)
	return nil
}

type ContactListCmd struct {
	ScopeFlags `embed:""`

	Type           string `help:"Filter by contact type" default:""`
	Status         string `help:"Filter by status" default:""`
	Company        string `help:"Filter by company" default:""`
	IncludeDeleted bool   `help:"Include deleted contacts"`
	Desc           bool   `help:"Newest first"`
	Limit          int    `help:"Page size" default:"50"`
	Token          string `help:"Page token from a previous listing"`
}

func (c *ContactListCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	filters := map[string]any{}
	if c.Type != "" {
		filters["contact_type"] = c.Type
	}
	if c.Status != "" {
		filters["status"] = c.Status
	}
	if c.Company != "" {
		filters["company"] = c.Company
	}

	page, err := s.res.Contacts.List(s.ctx, scope, repository.ListOptions{
		Filters:        filters,
		IncludeDeleted: c.IncludeDeleted,
		Descending:     c.Desc,
		Page:           repository.PageRequest{Limit: c.Limit, Token: c.Token},
	})
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}

	printContacts(page.Items, page.Total, page.NextToken)
	return nil
}

type ContactUpdateCmd struct {
	ScopeFlags `embed:""`

	ID      string            `arg:"" help:"Contact ID"`
	Version int64             `help:"Expected version" required:""`
	Set     map[string]string `help:"Field to change, as name=value" required:""`
}

func (c *ContactUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("contact", c.ID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	patch := make(store.Patch, len(c.Set))
	for k, v := range c.Set {
		patch[k] = v
	}

	updated, err := s.res.Contacts.Update(s.ctx, scope, id, c.Version, patch)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}

	printContact(updated)
	return nil
}

// ContactVersionedCmd is shared by the commands that take an id and the
// expected version.
type ContactVersionedCmd struct {
	ScopeFlags `embed:""`

	ID      string `arg:"" help:"Contact ID"`
	Version int64  `help:"Expected version" required:""`
}

func (c *ContactVersionedCmd) Run(ctx context.Context, kctx *kong.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("contact", c.ID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	engine := s.res.Contacts
	action := kctx.Selected().Name

	var result *models.Contact
	switch action {
	case "convert":
		result, err = engine.Convert(s.ctx, scope, id, c.Version)
	case "submit":
		result, err = engine.Submit(s.ctx, scope, id, c.Version)
	case "delete":
		result, err = engine.Delete(s.ctx, scope, id, c.Version)
	case "restore":
		result, err = engine.Restore(s.ctx, scope, id, c.Version)
	default:
		return fmt.Errorf("unknown contact command %q", action)
	}
	if err != nil {
		return fmt.Errorf("failed to %s contact: %w", action, err)
	}

	printContact(result)
	return nil
}

type ContactInteractCmd struct {
	ScopeFlags `embed:""`

	ID      string `arg:"" help:"Contact ID"`
	Kind    string `help:"Interaction kind (meeting, call, email, event, introduction, follow_up)" required:""`
	Outcome string `help:"Outcome (positive, neutral, negative)" default:"neutral" enum:"positive,neutral,negative"`
	Event   string `help:"Event ID the interaction happened at"`
	At      string `help:"When it happened (RFC3339); defaults to now"`
	Notes   string `help:"Notes"`
}

func (c *ContactInteractCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("contact", c.ID)
	if err != nil {
		return err
	}

	in := &models.ContactInteraction{
		Kind:    models.InteractionKind(c.Kind),
		Outcome: models.Outcome(c.Outcome),
		Notes:   c.Notes,
	}
	if c.At != "" {
		at, err := time.Parse(time.RFC3339, c.At)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		in.OccurredAt = at.UTC()
	}
	if c.Event != "" {
		eventID, err := parseID("event", c.Event)
		if err != nil {
			return err
		}
		in.EventID = &eventID
	}

	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.res.Contacts.RecordInteraction(s.ctx, scope, id, in)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	fmt.Printf("Recorded interaction %s\n\n", rec.Interaction.ID)
	printContact(rec.Contact)
	return nil
}

type ContactInteractionsCmd struct {
	ScopeFlags `embed:""`

	ID    string `arg:"" help:"Contact ID"`
	Limit int    `help:"Page size" default:"50"`
	Token string `help:"Page token from a previous listing"`
}

func (c *ContactInteractionsCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("contact", c.ID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	page, err := s.res.Contacts.ListInteractions(s.ctx, scope, id, repository.PageRequest{Limit: c.Limit, Token: c.Token})
	if err != nil {
		return fmt.Errorf("failed to list interactions: %w", err)
	}

	fmt.Printf("Interactions (%d of %d):\n", len(page.Items), page.Total)
	fmt.Printf("%-36s %-13s %-8s %-25s %s\n", "ID", "Kind", "Outcome", "Occurred At", "Notes")
	fmt.Println(strings.Repeat("─", 100))
	for _, in := range page.Items {
		fmt.Printf("%-36s %-13s %-8s %-25s %s\n", in.ID, in.Kind, in.Outcome, in.OccurredAt.Format(time.RFC3339), truncate(in.Notes, 30))
	}
	printNext(page.NextToken)
	return nil
}

type ContactHistoryCmd struct {
	ScopeFlags `embed:""`

	ID string `arg:"" help:"Contact ID"`
}

func (c *ContactHistoryCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	id, err := parseID("contact", c.ID)
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.res.Contacts.History(s.ctx, scope, id)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	printHistory(records)
	return nil
}

func printHistory(records []*models.AuditRecord) {
	fmt.Printf("%-25s %-8s %-36s %s\n", "Recorded At", "Action", "Actor", "After")
	fmt.Println(strings.Repeat("─", 120))
	for _, r := range records {
		actor := "system"
		if r.ActorID != nil {
			actor = r.ActorID.String()
		}
		fmt.Printf("%-25s %-8s %-36s %s\n", r.RecordedAt.Format(time.RFC3339Nano), r.Action, actor, r.After)
	}
}
