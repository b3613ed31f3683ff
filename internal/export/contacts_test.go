package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/plugbook/internal/bootstrap"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/store"
)

func TestContacts(t *testing.T) {
	ctx := context.Background()

	res, err := bootstrap.Open(ctx, config.Default())
	require.NoError(t, err)
	t.Cleanup(res.Close)

	scope := store.NewScope(uuid.New(), uuid.New())
	engine := res.Contacts

	var live []*models.Contact
	for _, name := range []string{"Ada", "Grace", "Edsger"} {
		c, err := engine.Create(ctx, scope, &models.Contact{FirstName: name})
		require.NoError(t, err)
		live = append(live, c)
	}
	for range 3 {
		_, err := engine.RecordInteraction(ctx, scope, live[0].ID, &models.ContactInteraction{
			Kind:    models.InteractionKinds[0],
			Outcome: models.OutcomePositive,
		})
		require.NoError(t, err)
	}

	deleted, err := engine.Get(ctx, scope, live[2].ID)
	require.NoError(t, err)
	_, err = engine.Delete(ctx, scope, deleted.ID, deleted.Version)
	require.NoError(t, err)

	// another tenant's data never leaks into the archive
	_, err = engine.Create(ctx, store.NewScope(uuid.New(), uuid.Nil), &models.Contact{FirstName: "Mallory"})
	require.NoError(t, err)

	tests := []struct {
		name           string
		includeDeleted bool
		contacts       int
	}{
		{name: "live only", contacts: 2},
		{name: "with deleted", includeDeleted: true, contacts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf)
			require.NoError(t, err)

			// page size 2 forces both listings to page
			require.NoError(t, Contacts(ctx, engine, scope, w, Options{IncludeDeleted: tt.includeDeleted, PageSize: 2}))
			written, err := w.Close()
			require.NoError(t, err)
			require.Equal(t, tt.contacts+3, written.Records)

			counts := map[string]int{}
			var lastContact uuid.UUID
			_, err = Read(&buf, func(e Entry) error {
				counts[e.Table]++

				var snap struct {
					ID             uuid.UUID `json:"id"`
					OrganizationID uuid.UUID `json:"organization_id"`
					ContactID      uuid.UUID `json:"contact_id"`
				}
				require.NoError(t, json.Unmarshal(e.Record, &snap))
				require.Equal(t, scope.OrgID, snap.OrganizationID)

				switch e.Table {
				case schema.TableContacts:
					lastContact = snap.ID
				case schema.TableInteractions:
					require.Equal(t, lastContact, snap.ContactID)
				}
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, tt.contacts, counts[schema.TableContacts])
			require.Equal(t, 3, counts[schema.TableInteractions])
		})
	}
}
