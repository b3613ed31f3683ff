package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

func fields(t *testing.T, err error) []string {
	t.Helper()
	if err == nil {
		return nil
	}
	var e *store.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, store.KindValidation, e.Kind)
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestValidateContact(t *testing.T) {
	valid := func() *models.Contact {
		return &models.Contact{
			FirstName:   "Ada",
			Email:       "ada@example.com",
			ContactType: models.ContactTypeTarget,
			Status:      models.ContactStatusColdLead,
		}
	}

	tests := []struct {
		name   string
		modify func(c *models.Contact)
		want   []string
	}{
		{name: "valid", modify: func(*models.Contact) {}},
		{name: "no email", modify: func(c *models.Contact) { c.Email = "" }},
		{name: "blank first name", modify: func(c *models.Contact) { c.FirstName = "  " }, want: []string{"first_name"}},
		{name: "bad email", modify: func(c *models.Contact) { c.Email = "ada at example" }, want: []string{"email"}},
		{name: "long company", modify: func(c *models.Contact) { c.Company = strings.Repeat("x", 201) }, want: []string{"company"}},
		{name: "unknown type", modify: func(c *models.Contact) { c.ContactType = "prospect" }, want: []string{"contact_type"}},
		{name: "unknown status", modify: func(c *models.Contact) { c.Status = "warm_lead" }, want: []string{"status"}},
		{name: "score above range", modify: func(c *models.Contact) { c.LeadScore = 101 }, want: []string{"lead_score"}},
		{
			name: "several problems",
			modify: func(c *models.Contact) {
				c.FirstName = ""
				c.LeadScore = -1
			},
			want: []string{"first_name", "lead_score"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			require.Equal(t, tt.want, fields(t, Contacts().Validate(c)))
		})
	}
}

func TestValidateInteraction(t *testing.T) {
	valid := func() *models.ContactInteraction {
		return &models.ContactInteraction{
			ContactID:  uuid.New(),
			ActorID:    uuid.New(),
			Kind:       models.InteractionMeeting,
			Outcome:    models.OutcomeNeutral,
			OccurredAt: time.Now(),
		}
	}

	tests := []struct {
		name   string
		modify func(i *models.ContactInteraction)
		want   []string
	}{
		{name: "valid", modify: func(*models.ContactInteraction) {}},
		{name: "no contact", modify: func(i *models.ContactInteraction) { i.ContactID = uuid.Nil }, want: []string{"contact_id"}},
		{name: "no actor", modify: func(i *models.ContactInteraction) { i.ActorID = uuid.Nil }, want: []string{"actor_id"}},
		{name: "unknown kind", modify: func(i *models.ContactInteraction) { i.Kind = "carrier_pigeon" }, want: []string{"kind"}},
		{name: "unknown outcome", modify: func(i *models.ContactInteraction) { i.Outcome = "great" }, want: []string{"outcome"}},
		{name: "no time", modify: func(i *models.ContactInteraction) { i.OccurredAt = time.Time{} }, want: []string{"occurred_at"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := valid()
			tt.modify(i)
			require.Equal(t, tt.want, fields(t, Interactions().Validate(i)))
		})
	}
}

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
		want  []string
	}{
		{name: "valid", event: models.Event{Name: "Meetup", StartsAt: time.Now(), MaxAttendees: 10, CurrentAttendees: 10}},
		{name: "no name", event: models.Event{StartsAt: time.Now(), MaxAttendees: 10}, want: []string{"name"}},
		{name: "no start", event: models.Event{Name: "Meetup", MaxAttendees: 10}, want: []string{"starts_at"}},
		{name: "over capacity", event: models.Event{Name: "Meetup", StartsAt: time.Now(), MaxAttendees: 1, CurrentAttendees: 2}, want: []string{"max_attendees"}},
		{
			name:  "negative counts",
			event: models.Event{Name: "Meetup", StartsAt: time.Now(), MaxAttendees: -1, CurrentAttendees: -2},
			want:  []string{"max_attendees", "current_attendees"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			require.Equal(t, tt.want, fields(t, Events().Validate(&e)))
		})
	}
}

func TestValidateAttendee(t *testing.T) {
	valid := &models.EventAttendee{EventID: uuid.New(), ContactID: uuid.New(), Status: models.AttendeeRegistered}
	require.NoError(t, Attendees().Validate(valid))

	require.Equal(t, []string{"event_id", "contact_id", "status"}, fields(t, Attendees().Validate(&models.EventAttendee{Status: "waitlisted"})))
}

func TestClone_Independent(t *testing.T) {
	deletedAt := time.Now()
	actor := uuid.New()
	last := time.Now()

	c := &models.Contact{
		Entity:          models.Entity{ID: uuid.New(), DeletedAt: &deletedAt, CreatedBy: &actor},
		FirstName:       "Ada",
		LastInteraction: &last,
	}
	clone := Contacts().Clone(c)
	require.Equal(t, c, clone)

	*clone.DeletedAt = clone.DeletedAt.Add(time.Hour)
	*clone.CreatedBy = uuid.New()
	*clone.LastInteraction = clone.LastInteraction.Add(time.Hour)
	clone.FirstName = "Grace"

	require.Equal(t, deletedAt, *c.DeletedAt)
	require.Equal(t, actor, *c.CreatedBy)
	require.Equal(t, last, *c.LastInteraction)
	require.Equal(t, "Ada", c.FirstName)

	eventID := uuid.New()
	in := &models.ContactInteraction{EventID: &eventID}
	inClone := Interactions().Clone(in)
	*inClone.EventID = uuid.New()
	require.Equal(t, eventID, *in.EventID)
}
