package contacts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/plugbook/internal/audit"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/service"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/store/memory"
	"github.com/wolfeidau/plugbook/internal/uow"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	st := memory.NewStore(memory.Config{})
	t.Cleanup(st.Close)

	runner := service.NewRunner(uow.NewManager(st), service.RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	contactSchema := schema.Contacts()
	interactionSchema := schema.Interactions()

	return NewEngine(
		runner,
		repository.New(memory.NewTable(st, contactSchema), contactSchema),
		repository.New(memory.NewTable(st, interactionSchema), interactionSchema),
		audit.NewRecorder(memory.NewAuditLog(st)),
		config.Default().Scoring,
		WithClock(func() time.Time { return testNow }),
	)
}

func newScope() store.Scope {
	return store.NewScope(uuid.New(), uuid.New())
}

func meeting(outcome models.Outcome) *models.ContactInteraction {
	return &models.ContactInteraction{Kind: models.InteractionMeeting, Outcome: outcome, OccurredAt: testNow.Add(-time.Hour)}
}

func TestEngine_Create(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	t.Run("defaults", func(t *testing.T) {
		c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
		require.NoError(t, err)
		require.Equal(t, models.ContactTypeTarget, c.ContactType)
		require.Equal(t, models.ContactStatusColdLead, c.Status)
		require.Zero(t, c.LeadScore)
		require.Equal(t, int64(1), c.Version)
	})

	t.Run("caller cannot set score", func(t *testing.T) {
		_, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada", LeadScore: 90})
		require.ErrorIs(t, err, store.ErrValidation)
	})

	t.Run("cannot start as plug", func(t *testing.T) {
		_, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada", ContactType: models.ContactTypePlug})
		require.ErrorIs(t, err, store.ErrValidation)
	})

	t.Run("payload is not modified", func(t *testing.T) {
		payload := &models.Contact{FirstName: "Grace"}
		_, err := e.Create(ctx, scope, payload)
		require.NoError(t, err)
		require.Empty(t, payload.ContactType)
		require.Equal(t, uuid.Nil, payload.ID)
	})
}

func TestEngine_BulkCreate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	last := testNow
	tests := []struct {
		name  string
		bad   *models.Contact
		field string
	}{
		{
			name:  "preset score",
			bad:   &models.Contact{FirstName: "Eve", LeadScore: 95},
			field: "lead_score",
		},
		{
			name:  "preset last interaction",
			bad:   &models.Contact{FirstName: "Eve", LastInteraction: &last},
			field: "last_interaction",
		},
		{
			name:  "starts as plug",
			bad:   &models.Contact{FirstName: "Eve", ContactType: models.ContactTypePlug, Status: models.ContactStatusHotLead},
			field: "contact_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := newScope()
			_, err := e.BulkCreate(ctx, scope, []*models.Contact{{FirstName: "Ada"}, tt.bad})
			require.ErrorIs(t, err, store.ErrValidation)

			var batchErr *repository.BatchError
			require.ErrorAs(t, err, &batchErr)
			require.Equal(t, 1, batchErr.Index)

			var se *store.Error
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.field, se.Fields[0].Field)

			page, err := e.List(ctx, scope, repository.ListOptions{})
			require.NoError(t, err)
			require.Zero(t, page.Total)
		})
	}

	t.Run("applies create defaults", func(t *testing.T) {
		created, err := e.BulkCreate(ctx, newScope(), []*models.Contact{
			{FirstName: "Ada"},
			{FirstName: "Grace", ContactType: models.ContactTypeContact},
		})
		require.NoError(t, err)
		require.Len(t, created, 2)
		require.Equal(t, models.ContactTypeTarget, created[0].ContactType)
		require.Equal(t, models.ContactStatusColdLead, created[0].Status)
		require.Equal(t, models.ContactTypeContact, created[1].ContactType)
	})
}

func TestEngine_UpdateRejectsEngineFields(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		patch store.Patch
	}{
		{name: "lead score", patch: store.Patch{"lead_score": 99}},
		{name: "contact type", patch: store.Patch{"contact_type": "plug"}},
		{name: "last interaction", patch: store.Patch{"last_interaction": testNow}},
		{name: "mixed with allowed field", patch: store.Patch{"company": "Acme", "lead_score": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Update(ctx, scope, c.ID, c.Version, tt.patch)
			require.ErrorIs(t, err, store.ErrValidation)
		})
	}

	got, err := e.Get(ctx, scope, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Version)

	updated, err := e.Update(ctx, scope, c.ID, c.Version, store.Patch{"company": "Acme"})
	require.NoError(t, err)
	require.Equal(t, "Acme", updated.Company)
}

func TestEngine_Lifecycle(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	t.Run("target cannot skip to plug", func(t *testing.T) {
		c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
		require.NoError(t, err)

		_, err = e.Submit(ctx, scope, c.ID, c.Version)
		require.ErrorIs(t, err, store.ErrValidation)
		require.Equal(t, "contact_type", fieldOf(t, err))

		got, err := e.Get(ctx, scope, c.ID)
		require.NoError(t, err)
		require.Equal(t, models.ContactTypeTarget, got.ContactType)
	})

	t.Run("first interaction promotes target", func(t *testing.T) {
		c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Grace"})
		require.NoError(t, err)

		rec, err := e.RecordInteraction(ctx, scope, c.ID, meeting(models.OutcomePositive))
		require.NoError(t, err)
		require.Equal(t, models.ContactTypeContact, rec.Contact.ContactType)
		require.Equal(t, int64(2), rec.Contact.Version)
		require.Equal(t, c.ID, rec.Interaction.ContactID)
		require.Equal(t, scope.ActorID, rec.Interaction.ActorID)
		require.NotNil(t, rec.Contact.LastInteraction)
		require.True(t, rec.Contact.LastInteraction.Equal(testNow.Add(-time.Hour)))
		require.Greater(t, rec.Contact.LeadScore, 0)

		plug, err := e.Submit(ctx, scope, c.ID, rec.Contact.Version)
		require.NoError(t, err)
		require.Equal(t, models.ContactTypePlug, plug.ContactType)

		_, err = e.Convert(ctx, scope, c.ID, plug.Version)
		require.ErrorIs(t, err, store.ErrValidation)
	})

	t.Run("explicit conversion", func(t *testing.T) {
		c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Edsger"})
		require.NoError(t, err)

		converted, err := e.Convert(ctx, scope, c.ID, c.Version)
		require.NoError(t, err)
		require.Equal(t, models.ContactTypeContact, converted.ContactType)

		_, err = e.Convert(ctx, scope, c.ID, c.Version)
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("client status survives rescoring", func(t *testing.T) {
		c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Barbara", Status: models.ContactStatusExistingClient})
		require.NoError(t, err)

		rec, err := e.RecordInteraction(ctx, scope, c.ID, meeting(models.OutcomeNegative))
		require.NoError(t, err)
		require.Equal(t, models.ContactStatusExistingClient, rec.Contact.Status)
	})
}

func TestEngine_LeadClassification(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	var rec *Recorded
	for _, kind := range models.InteractionKinds {
		rec, err = e.RecordInteraction(ctx, scope, c.ID, &models.ContactInteraction{
			Kind:       kind,
			Outcome:    models.OutcomePositive,
			OccurredAt: testNow.Add(-time.Minute),
		})
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, rec.Contact.LeadScore, e.policy.HotLeadThreshold)
	require.Equal(t, models.ContactStatusHotLead, rec.Contact.Status)

	page, err := e.ListInteractions(ctx, scope, c.ID, repository.PageRequest{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, len(models.InteractionKinds), page.Total)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextToken)
}

func TestEngine_ThousandNegativeInteractions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	for i := range 1000 {
		rec, err := e.RecordInteraction(ctx, scope, c.ID, &models.ContactInteraction{
			Kind:       models.InteractionCall,
			Outcome:    models.OutcomeNegative,
			OccurredAt: testNow.Add(-time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		require.GreaterOrEqual(t, rec.Contact.LeadScore, MinScore)
		require.LessOrEqual(t, rec.Contact.LeadScore, MaxScore)
		require.Equal(t, models.ContactStatusColdLead, rec.Contact.Status)
	}

	got, err := e.Get(ctx, scope, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1001), got.Version)
	require.True(t, got.LastInteraction.Equal(testNow))
}

func TestEngine_RecordInteractionValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload *models.ContactInteraction
		want    error
	}{
		{name: "unknown kind", payload: &models.ContactInteraction{Kind: "carrier_pigeon", Outcome: models.OutcomeNeutral}, want: store.ErrValidation},
		{name: "unknown outcome", payload: &models.ContactInteraction{Kind: models.InteractionCall, Outcome: "great"}, want: store.ErrValidation},
		{name: "other contact", payload: &models.ContactInteraction{ContactID: uuid.New(), Kind: models.InteractionCall, Outcome: models.OutcomeNeutral}, want: store.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordInteraction(ctx, scope, c.ID, tt.payload)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unknown contact", func(t *testing.T) {
		_, err := e.RecordInteraction(ctx, scope, uuid.New(), meeting(models.OutcomeNeutral))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("other tenant", func(t *testing.T) {
		_, err := e.RecordInteraction(ctx, newScope(), c.ID, meeting(models.OutcomeNeutral))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	got, err := e.Get(ctx, scope, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.ContactTypeTarget, got.ContactType)
	require.Equal(t, int64(1), got.Version)
}

func TestEngine_ConcurrentInteractions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	const writers = 5
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.RecordInteraction(ctx, scope, c.ID, meeting(models.OutcomePositive))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	page, err := e.ListInteractions(ctx, scope, c.ID, repository.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, writers, page.Total)

	got, err := e.Get(ctx, scope, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1+writers), got.Version)
}

func TestEngine_DeleteCascades(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	scope := newScope()

	c, err := e.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	var rec *Recorded
	for range 3 {
		rec, err = e.RecordInteraction(ctx, scope, c.ID, meeting(models.OutcomeNeutral))
		require.NoError(t, err)
	}

	deleted, err := e.Delete(ctx, scope, c.ID, rec.Contact.Version)
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted)

	_, err = e.ListInteractions(ctx, scope, c.ID, repository.PageRequest{})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.RecordInteraction(ctx, scope, c.ID, meeting(models.OutcomeNeutral))
	require.ErrorIs(t, err, store.ErrNotFound)

	restored, err := e.Restore(ctx, scope, c.ID, deleted.Version)
	require.NoError(t, err)
	require.False(t, restored.IsDeleted)

	page, err := e.ListInteractions(ctx, scope, c.ID, repository.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	for _, in := range page.Items {
		require.False(t, in.IsDeleted)
		require.Equal(t, int64(3), in.Version)
	}

	history, err := e.History(ctx, scope, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.AuditRestore, history[len(history)-1].Action)
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var se *store.Error
	require.ErrorAs(t, err, &se)
	require.NotEmpty(t, se.Fields)
	return se.Fields[0].Field
}
