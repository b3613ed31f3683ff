// Package uow bounds logical transactions. A unit of work is carried on the
// context so a nested Begin on the same call chain is detected and refused.
package uow

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/store"
)

type ctxKey struct{}

type state int

const (
	stateActive state = iota
	stateCommitted
	stateRolledBack
)

// UnitOfWork is one transaction on a backend.
type UnitOfWork struct {
	tx store.Tx

	mu    sync.Mutex
	state state
}

// FromContext returns the unit of work carried by ctx, or nil.
func FromContext(ctx context.Context) *UnitOfWork {
	u, _ := ctx.Value(ctxKey{}).(*UnitOfWork)
	return u
}

// Tx returns the underlying transaction handle.
func (u *UnitOfWork) Tx() store.Tx {
	return u.tx
}

// Active reports whether the unit has neither committed nor rolled back.
func (u *UnitOfWork) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == stateActive
}

// Commit makes every operation issued in the unit durable. Whatever the
// outcome, the unit is finished afterwards.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != stateActive {
		return store.InvalidState("unit of work is not active")
	}

	err := u.tx.Commit(ctx)
	if err != nil {
		u.state = stateRolledBack
		return err
	}
	u.state = stateCommitted
	return nil
}

// Rollback discards the unit. It never fails; backend errors are logged.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != stateActive {
		return nil
	}
	u.state = stateRolledBack

	if err := u.tx.Rollback(ctx); err != nil {
		log.Warn().Err(err).Str("tx_id", u.tx.ID().String()).Msg("Rollback failed")
	}
	return nil
}

// Manager opens units of work on a backend.
type Manager struct {
	backend store.Backend
}

// NewManager creates a manager for the given backend.
func NewManager(backend store.Backend) *Manager {
	return &Manager{backend: backend}
}

// Begin opens a unit of work and returns a context carrying it. Beginning
// while ctx already carries an active unit fails with InvalidState.
func (m *Manager) Begin(ctx context.Context) (context.Context, *UnitOfWork, error) {
	if u := FromContext(ctx); u != nil && u.Active() {
		return ctx, nil, store.InvalidState("a unit of work is already active on this call chain")
	}
	if err := ctx.Err(); err != nil {
		return ctx, nil, err
	}

	tx, err := m.backend.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}

	u := &UnitOfWork{tx: tx}
	return context.WithValue(ctx, ctxKey{}, u), u, nil
}

// Do runs fn in a new unit of work and commits if fn succeeds. The unit is
// rolled back on every other exit path, including a panic inside fn, which
// is re-raised after the rollback.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	ctx, u, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = u.Rollback(ctx)
			panic(r)
		}
		if err != nil {
			_ = u.Rollback(ctx)
		}
	}()

	if err = fn(ctx, u.Tx()); err != nil {
		return err
	}
	return u.Commit(ctx)
}
