package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/store"
)

var _ store.Backend = (*Store)(nil)

// Store implements store.Backend on a PostgreSQL connection pool. Each unit
// of work holds one pooled connection running a READ COMMITTED transaction;
// optimistic checks are versioned UPDATEs, so concurrent writers of the same
// row serialise on the row lock and the loser matches zero rows.
type Store struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewStore wraps an existing pool. It shares the pool with any other users.
func NewStore(pool *pgxpool.Pool, acquireTimeout time.Duration) *Store {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &Store{pool: pool, acquireTimeout: acquireTimeout}
}

// Open creates the pool, optionally runs migrations and returns the store.
func Open(ctx context.Context, cfg *PoolConfig) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return NewStore(pool, cfg.AcquireTimeout), nil
}

// Pool exposes the underlying pool for migrations and integration tests.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Begin acquires a connection, waiting at most the acquire timeout, and
// starts a READ COMMITTED transaction on it.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("begin transaction: %w", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			stat := s.pool.Stat()
			log.Warn().
				Int32("acquired_conns", stat.AcquiredConns()).
				Int32("max_conns", stat.MaxConns()).
				Dur("waited", s.acquireTimeout).
				Msg("Connection pool saturated")
			return nil, store.ResourceExhausted("connection pool saturated", err)
		}
		return nil, mapPostgresError("acquire connection", err)
	}

	ptx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		conn.Release()
		return nil, mapPostgresError("begin transaction", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		_ = ptx.Rollback(context.WithoutCancel(ctx))
		conn.Release()
		return nil, store.Storage("failed to allocate transaction", false, err)
	}

	return &tx{id: id, conn: conn, tx: ptx}, nil
}

type tx struct {
	id   uuid.UUID
	conn *pgxpool.Conn
	tx   pgx.Tx

	mu     sync.Mutex
	done   bool
	failed error
}

func (t *tx) ID() uuid.UUID { return t.id }

func (t *tx) MarkFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed == nil {
		t.failed = err
	}
}

// Commit commits the transaction unless it was poisoned or the context is
// done, in which case it rolls back and reports why.
func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.InvalidState("transaction already finished")
	}
	defer t.finish()

	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback(context.WithoutCancel(ctx))
		return fmt.Errorf("commit aborted: %w", err)
	}
	if t.failed != nil {
		_ = t.tx.Rollback(ctx)
		return t.failed
	}

	if err := t.tx.Commit(ctx); err != nil {
		return mapPostgresError("commit", err)
	}

	log.Debug().Str("tx_id", t.id.String()).Msg("Committed transaction")
	return nil
}

// Rollback rolls back the transaction even if ctx is already cancelled.
func (t *tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}
	defer t.finish()

	if err := t.tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Warn().Err(err).Str("tx_id", t.id.String()).Msg("Rollback failed")
	}
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.conn.Release()
}

// fail records the first optimistic failure so Commit refuses to persist.
func (t *tx) fail(err error) {
	if t.failed == nil {
		t.failed = err
	}
}

// lock resolves the transaction and holds its lock until the returned func
// is called. Operations on one tx are serialised, as pgx connections are not
// safe for concurrent use.
func lock(stx store.Tx) (*tx, func(), error) {
	t, ok := stx.(*tx)
	if !ok {
		return nil, nil, store.InvalidState("transaction belongs to another backend")
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, nil, store.InvalidState("transaction already finished")
	}
	return t, t.mu.Unlock, nil
}
