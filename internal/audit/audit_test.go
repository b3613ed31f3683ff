package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/store/memory"
	"github.com/wolfeidau/plugbook/internal/uow"
)

type failingLog struct {
	store.AuditLog
}

func (failingLog) Append(context.Context, store.Tx, *models.AuditRecord) error {
	return store.Storage("audit sink unavailable", true, errors.New("disk full"))
}

func setup(t *testing.T, log func(*memory.Store) store.AuditLog) (*uow.Manager, *repository.Repository[*models.Contact], *Recorder) {
	t.Helper()
	st := memory.NewStore(memory.Config{})
	contacts := schema.Contacts()
	return uow.NewManager(st),
		repository.New(memory.NewTable(st, contacts), contacts),
		NewRecorder(log(st))
}

func memoryLog(st *memory.Store) store.AuditLog { return memory.NewAuditLog(st) }

func TestRecord(t *testing.T) {
	mgr, repo, rec := setup(t, memoryLog)
	scope := store.NewScope(uuid.New(), uuid.New())
	ctx := context.Background()
	contacts := repo.Schema()

	var id uuid.UUID
	err := mgr.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := repo.Create(ctx, tx, scope, &models.Contact{
			FirstName:   "Ada",
			ContactType: models.ContactTypeTarget,
			Status:      models.ContactStatusColdLead,
		})
		if err != nil {
			return err
		}
		id = c.ID
		return Record(ctx, rec, tx, scope, contacts, models.AuditCreate, repository.Change[*models.Contact]{After: c})
	})
	require.NoError(t, err)

	err = mgr.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		ch, err := repo.UpdateTracked(ctx, tx, scope, id, 1, store.Patch{"company": "Analytical Engines"})
		if err != nil {
			return err
		}
		return Record(ctx, rec, tx, scope, contacts, models.AuditUpdate, ch)
	})
	require.NoError(t, err)

	err = mgr.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		history, err := rec.History(ctx, tx, scope, schema.TableContacts, id)
		require.NoError(t, err)
		require.Len(t, history, 2)

		require.Equal(t, models.AuditCreate, history[0].Action)
		require.Empty(t, history[0].Before)
		require.Equal(t, scope.ActorID, *history[0].ActorID)

		require.Equal(t, models.AuditUpdate, history[1].Action)
		var before, after map[string]any
		require.NoError(t, json.Unmarshal(history[1].Before, &before))
		require.NoError(t, json.Unmarshal(history[1].After, &after))
		require.Equal(t, "", before["company"])
		require.Equal(t, "Analytical Engines", after["company"])
		require.EqualValues(t, 1, before["version"])
		require.EqualValues(t, 2, after["version"])

		other, err := rec.History(ctx, tx, store.NewScope(uuid.New(), uuid.Nil), schema.TableContacts, id)
		require.NoError(t, err)
		require.Empty(t, other)
		return nil
	})
	require.NoError(t, err)
}

func TestRecord_FailureAbortsMutation(t *testing.T) {
	mgr, repo, rec := setup(t, func(*memory.Store) store.AuditLog { return failingLog{} })
	scope := store.NewScope(uuid.New(), uuid.Nil)
	ctx := context.Background()

	err := mgr.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := repo.Create(ctx, tx, scope, &models.Contact{
			FirstName:   "Ada",
			ContactType: models.ContactTypeTarget,
			Status:      models.ContactStatusColdLead,
		})
		if err != nil {
			return err
		}
		return Record(ctx, rec, tx, scope, repo.Schema(), models.AuditCreate, repository.Change[*models.Contact]{After: c})
	})
	require.ErrorIs(t, err, store.ErrStorage)

	err = mgr.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		page, err := repo.List(ctx, tx, scope, repository.ListOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.Zero(t, page.Total)
		return nil
	})
	require.NoError(t, err)
}
