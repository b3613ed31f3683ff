// Package memory provides an in-memory storage backend used by tests and
// ephemeral environments. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
	"golang.org/x/sync/semaphore"
)

var _ store.Backend = (*Store)(nil)

// Config holds configuration for the in-memory backend.
type Config struct {
	// PoolSize is the number of transactions that may be open at once.
	// Default: 20
	PoolSize int64

	// AcquireTimeout is how long Begin waits for a free slot.
	// Default: 5s
	AcquireTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
}

type committedRow struct {
	row     any // T, owned by the store
	version int64
}

// Store is an in-memory backend with optimistic transactions. Each
// transaction buffers its writes together with the version every touched row
// had when first read; Commit re-checks those versions under the store lock.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[uuid.UUID]committedRow
	audit  []*models.AuditRecord

	pool           *semaphore.Weighted
	acquireTimeout time.Duration
}

// NewStore creates a new in-memory backend.
func NewStore(cfg Config) *Store {
	cfg.ApplyDefaults()
	return &Store{
		tables:         make(map[string]map[uuid.UUID]committedRow),
		pool:           semaphore.NewWeighted(cfg.PoolSize),
		acquireTimeout: cfg.AcquireTimeout,
	}
}

// Begin opens a transaction, waiting up to the acquire timeout for a slot.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	if err := s.pool.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("begin transaction: %w", ctx.Err())
		}
		return nil, store.ResourceExhausted("transaction pool saturated", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.pool.Release(1)
		return nil, store.Storage("failed to allocate transaction", false, err)
	}

	return &tx{
		id:     id,
		store:  s,
		writes: make(map[string]map[uuid.UUID]*pendingRow),
	}, nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() {}

type pendingRow struct {
	row         any
	insert      bool
	baseVersion int64
}

type tx struct {
	id    uuid.UUID
	store *Store

	mu     sync.Mutex
	done   bool
	failed error
	writes map[string]map[uuid.UUID]*pendingRow
	audit  []*models.AuditRecord
}

func (t *tx) ID() uuid.UUID { return t.id }

func (t *tx) MarkFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed == nil {
		t.failed = err
	}
}

// Commit validates the base version of every updated row and applies all
// buffered writes atomically.
func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.InvalidState("transaction already finished")
	}
	defer t.finish()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit aborted: %w", err)
	}
	if t.failed != nil {
		return t.failed
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for table, rows := range t.writes {
		committed := s.tables[table]
		for id, p := range rows {
			cur, exists := committed[id]
			switch {
			case p.insert && exists:
				return store.Duplicate("record already exists")
			case !p.insert && (!exists || cur.version != p.baseVersion):
				return store.Conflict("stale version: record changed since it was read")
			}
		}
	}

	for table, rows := range t.writes {
		committed := s.tables[table]
		if committed == nil {
			committed = make(map[uuid.UUID]committedRow)
			s.tables[table] = committed
		}
		for id, p := range rows {
			committed[id] = committedRow{row: p.row, version: p.row.(models.Model).Base().Version}
		}
	}
	s.audit = append(s.audit, t.audit...)

	log.Debug().
		Str("tx_id", t.id.String()).
		Int("tables", len(t.writes)).
		Int("audit_records", len(t.audit)).
		Msg("Committed transaction")

	return nil
}

// Rollback discards buffered writes. Safe to call more than once.
func (t *tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.writes = nil
	t.audit = nil
	t.store.pool.Release(1)
}

// pending returns the buffered rows of table, creating the map if needed.
func (t *tx) pending(table string) map[uuid.UUID]*pendingRow {
	rows := t.writes[table]
	if rows == nil {
		rows = make(map[uuid.UUID]*pendingRow)
		t.writes[table] = rows
	}
	return rows
}

func asTx(s *Store, stx store.Tx) (*tx, error) {
	mt, ok := stx.(*tx)
	if !ok || mt.store != s {
		return nil, store.InvalidState("transaction belongs to another backend")
	}
	return mt, nil
}
