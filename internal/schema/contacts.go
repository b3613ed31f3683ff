package schema

import (
	"time"

	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Contacts returns the schema of the contacts table.
func Contacts() *store.Schema[*models.Contact] {
	return &store.Schema[*models.Contact]{
		Table:  TableContacts,
		Entity: "contact",
		New:    func() *models.Contact { return &models.Contact{} },
		Clone: func(c *models.Contact) *models.Contact {
			clone := *c
			clone.Entity = cloneEntity(c.Entity)
			clone.LastInteraction = cloneTime(c.LastInteraction)
			return &clone
		},
		Fields: []store.Field[*models.Contact]{
			store.Column("first_name", func(c *models.Contact) *string { return &c.FirstName }, store.Patchable()),
			store.Column("last_name", func(c *models.Contact) *string { return &c.LastName }, store.Patchable()),
			store.Column("email", func(c *models.Contact) *string { return &c.Email }, store.Patchable(), store.Filterable()),
			store.Column("company", func(c *models.Contact) *string { return &c.Company }, store.Patchable(), store.Filterable()),
			store.Column("title", func(c *models.Contact) *string { return &c.Title }, store.Patchable()),
			store.Column("phone", func(c *models.Contact) *string { return &c.Phone }, store.Patchable()),
			store.Column("notes", func(c *models.Contact) *string { return &c.Notes }, store.Patchable()),
			store.Column("contact_type", func(c *models.Contact) *models.ContactType { return &c.ContactType }, store.Patchable(), store.Filterable()),
			store.Column("status", func(c *models.Contact) *models.ContactStatus { return &c.Status }, store.Patchable(), store.Filterable()),
			store.Column("lead_score", func(c *models.Contact) *int { return &c.LeadScore }, store.Patchable(), store.Filterable()),
			store.Column("last_interaction", func(c *models.Contact) **time.Time { return &c.LastInteraction }, store.Patchable()),
		},
		Validate: validateContact,
	}
}

func validateContact(c *models.Contact) error {
	var p problems
	if blank(c.FirstName) {
		p.add("first_name", "is required")
	}
	p.check("first_name", c.FirstName, "max=100", "must be at most 100 characters")
	p.check("last_name", c.LastName, "max=100", "must be at most 100 characters")
	p.check("email", c.Email, "omitempty,email,max=254", "is not a valid address")
	p.check("company", c.Company, "max=200", "must be at most 200 characters")
	p.check("title", c.Title, "max=200", "must be at most 200 characters")
	p.check("phone", c.Phone, "max=50", "must be at most 50 characters")
	if !c.ContactType.Valid() {
		p.add("contact_type", "must be one of target, contact, plug")
	}
	if !c.Status.Valid() {
		p.add("status", "must be one of new_client, existing_client, hot_lead, cold_lead")
	}
	if c.LeadScore < 0 || c.LeadScore > 100 {
		p.add("lead_score", "must be between 0 and 100")
	}
	return p.err()
}
