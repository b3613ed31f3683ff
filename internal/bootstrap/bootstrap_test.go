package bootstrap

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/store/memory"
)

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	res, err := Open(ctx, config.Default())
	require.NoError(t, err)
	defer res.Close()

	require.IsType(t, &memory.Store{}, res.Backend)

	scope := store.NewScope(uuid.New(), uuid.New())
	c, err := res.Contacts.Create(ctx, scope, &models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	rec, err := res.Contacts.RecordInteraction(ctx, scope, c.ID, &models.ContactInteraction{
		Kind:    models.InteractionIntroduction,
		Outcome: models.OutcomePositive,
	})
	require.NoError(t, err)
	require.Equal(t, models.ContactTypeContact, rec.Contact.ContactType)

	history, err := res.Contacts.History(ctx, scope, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StorePostgres

	_, err := Open(context.Background(), cfg)
	require.ErrorContains(t, err, "conn_string")
}

func TestMemoryRepositories_ShareStore(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore(memory.Config{})
	repos := memoryRepositories(st)
	scope := store.NewScope(uuid.New(), uuid.New())
	orgID := scope.OrgID

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	c, err := repos.contacts.Create(ctx, tx, scope, &models.Contact{
		FirstName:   "Ada",
		ContactType: models.ContactTypeTarget,
		Status:      models.ContactStatusColdLead,
	})
	require.NoError(t, err)
	require.NoError(t, repos.auditLog.Append(ctx, tx, &models.AuditRecord{
		ID:             uuid.Must(uuid.NewV7()),
		OrganizationID: orgID,
		Table:          schema.TableContacts,
		RecordID:       c.ID,
		Action:         models.AuditCreate,
		RecordedAt:     c.CreatedAt,
	}))
	require.NoError(t, tx.Commit(ctx))

	// a second set of repositories on the same store sees the committed rows
	other := memoryRepositories(st)
	tx, err = st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	got, err := other.contacts.GetByID(ctx, tx, scope, c.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.FirstName)

	audits, err := other.auditLog.ListForRecord(ctx, tx, orgID, schema.TableContacts, c.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
}
