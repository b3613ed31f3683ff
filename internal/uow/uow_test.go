package uow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/store/memory"
)

func setup(t *testing.T) (*Manager, *memory.Table[*models.Contact], uuid.UUID) {
	t.Helper()
	st := memory.NewStore(memory.Config{PoolSize: 1, AcquireTimeout: 50 * time.Millisecond})
	t.Cleanup(st.Close)
	return NewManager(st), memory.NewTable(st, schema.Contacts()), uuid.New()
}

func row(orgID uuid.UUID) *models.Contact {
	now := time.Now().UTC()
	return &models.Contact{
		Entity:      models.Entity{ID: uuid.New(), OrganizationID: orgID, CreatedAt: now, UpdatedAt: now, Version: 1},
		FirstName:   "Ada",
		ContactType: models.ContactTypeTarget,
		Status:      models.ContactStatusColdLead,
	}
}

func visible(t *testing.T, m *Manager, tbl *memory.Table[*models.Contact], orgID, id uuid.UUID) bool {
	t.Helper()
	var found bool
	err := m.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tbl.Get(ctx, tx, orgID, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	require.NoError(t, err)
	return found
}

func TestManager_Do(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		m, tbl, org := setup(t)
		r := row(org)
		err := m.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
			return tbl.Insert(ctx, tx, r)
		})
		require.NoError(t, err)
		require.True(t, visible(t, m, tbl, org, r.ID))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		m, tbl, org := setup(t)
		r := row(org)
		boom := errors.New("boom")
		err := m.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if err := tbl.Insert(ctx, tx, r); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.False(t, visible(t, m, tbl, org, r.ID))
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		m, tbl, org := setup(t)
		r := row(org)
		require.PanicsWithValue(t, "boom", func() {
			_ = m.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
				_ = tbl.Insert(ctx, tx, r)
				panic("boom")
			})
		})
		require.False(t, visible(t, m, tbl, org, r.ID))
	})

	t.Run("cancellation forces rollback", func(t *testing.T) {
		m, tbl, org := setup(t)
		r := row(org)
		ctx, cancel := context.WithCancel(context.Background())
		err := m.Do(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tbl.Insert(ctx, tx, r); err != nil {
				return err
			}
			cancel()
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, visible(t, m, tbl, org, r.ID))
	})

	t.Run("poisoned transaction does not commit", func(t *testing.T) {
		m, tbl, org := setup(t)
		r := row(org)
		err := m.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if err := tbl.Insert(ctx, tx, r); err != nil {
				return err
			}
			tx.MarkFailed(store.Conflict("stale"))
			return nil
		})
		require.ErrorIs(t, err, store.ErrConflict)
		require.False(t, visible(t, m, tbl, org, r.ID))
	})

	t.Run("nested begin is refused", func(t *testing.T) {
		m, _, _ := setup(t)
		var inner error
		err := m.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
			inner = m.Do(ctx, func(context.Context, store.Tx) error { return nil })
			return nil
		})
		require.NoError(t, err)
		require.ErrorIs(t, inner, store.ErrInvalidState)
	})

	t.Run("finished unit on context allows a new one", func(t *testing.T) {
		m, _, _ := setup(t)
		ctx, u, err := m.Begin(context.Background())
		require.NoError(t, err)
		require.NoError(t, u.Commit(ctx))
		require.False(t, u.Active())

		_, u2, err := m.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, u2.Rollback(ctx))
	})
}

func TestUnitOfWork_Finish(t *testing.T) {
	m, _, _ := setup(t)
	ctx, u, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.Same(t, u, FromContext(ctx))
	require.True(t, u.Active())

	require.NoError(t, u.Rollback(ctx))
	require.NoError(t, u.Rollback(ctx))
	require.ErrorIs(t, u.Commit(ctx), store.ErrInvalidState)
	require.Nil(t, FromContext(context.Background()))
}
