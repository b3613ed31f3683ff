package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Table implements store.Table over the in-memory backend.
type Table[T models.Model] struct {
	store  *Store
	schema *store.Schema[T]
}

// NewTable creates an in-memory table for the given schema.
func NewTable[T models.Model](st *Store, schema *store.Schema[T]) *Table[T] {
	return &Table[T]{store: st, schema: schema}
}

// lock resolves the transaction and holds its lock until the returned func
// is called.
func (tb *Table[T]) lock(stx store.Tx) (*tx, func(), error) {
	t, err := asTx(tb.store, stx)
	if err != nil {
		return nil, nil, err
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, nil, store.InvalidState("transaction already finished")
	}
	return t, t.mu.Unlock, nil
}

// visible returns the row as seen by the transaction: its own buffered write
// if any, otherwise the committed row. The returned value is not cloned.
func (tb *Table[T]) visible(t *tx, id uuid.UUID) (T, int64, bool) {
	if p, ok := t.writes[tb.schema.Table][id]; ok {
		row := p.row.(T)
		return row, row.Base().Version, true
	}

	tb.store.mu.RLock()
	defer tb.store.mu.RUnlock()

	var zero T
	c, ok := tb.store.tables[tb.schema.Table][id]
	if !ok {
		return zero, 0, false
	}
	return c.row.(T), c.version, true
}

// Insert buffers a new row.
func (tb *Table[T]) Insert(ctx context.Context, stx store.Tx, row T) error {
	t, unlock, err := tb.lock(stx)
	if err != nil {
		return err
	}
	defer unlock()

	id := row.Base().ID
	if _, _, exists := tb.visible(t, id); exists {
		return store.Duplicate("record already exists")
	}

	t.pending(tb.schema.Table)[id] = &pendingRow{
		row:    tb.schema.Clone(row),
		insert: true,
	}
	return nil
}

// Get returns a clone of the row, including soft-deleted rows.
func (tb *Table[T]) Get(ctx context.Context, stx store.Tx, orgID, id uuid.UUID) (T, error) {
	var zero T

	t, unlock, err := tb.lock(stx)
	if err != nil {
		return zero, err
	}
	defer unlock()

	row, _, ok := tb.visible(t, id)
	if !ok || row.Base().OrganizationID != orgID {
		return zero, store.NotFound(tb.schema.Entity)
	}
	return tb.schema.Clone(row), nil
}

// CompareAndSwap buffers row iff the visible version equals expectedVersion.
// A mismatch poisons the transaction.
func (tb *Table[T]) CompareAndSwap(ctx context.Context, stx store.Tx, row T, expectedVersion int64) error {
	t, unlock, err := tb.lock(stx)
	if err != nil {
		return err
	}
	defer unlock()

	base := row.Base()
	current, version, ok := tb.visible(t, base.ID)
	if !ok || current.Base().OrganizationID != base.OrganizationID {
		return store.NotFound(tb.schema.Entity)
	}
	if version != expectedVersion {
		conflict := store.Conflict("stale version: record changed since it was read")
		if t.failed == nil {
			t.failed = conflict
		}
		return conflict
	}

	rows := t.pending(tb.schema.Table)
	if p, ok := rows[base.ID]; ok {
		p.row = tb.schema.Clone(row)
		return nil
	}
	rows[base.ID] = &pendingRow{
		row:         tb.schema.Clone(row),
		baseVersion: version,
	}
	return nil
}

// Query scans committed rows overlaid with the transaction's own writes.
func (tb *Table[T]) Query(ctx context.Context, stx store.Tx, q store.Query) ([]T, int, error) {
	t, unlock, err := tb.lock(stx)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	fields := make([]store.Field[T], 0, len(q.Filters))
	for _, f := range q.Filters {
		field, ok := tb.schema.Field(f.Field)
		if !ok {
			return nil, 0, store.FieldInvalid(f.Field, "unknown filter field")
		}
		fields = append(fields, field)
	}

	candidates := make(map[uuid.UUID]T)
	tb.store.mu.RLock()
	for id, c := range tb.store.tables[tb.schema.Table] {
		candidates[id] = c.row.(T)
	}
	tb.store.mu.RUnlock()
	for id, p := range t.writes[tb.schema.Table] {
		candidates[id] = p.row.(T)
	}

	matched := make([]T, 0, len(candidates))
	for _, row := range candidates {
		base := row.Base()
		if base.OrganizationID != q.OrgID {
			continue
		}
		if base.IsDeleted && !q.IncludeDeleted {
			continue
		}
		if !matches(row, q.Filters, fields) {
			continue
		}
		matched = append(matched, row)
	}

	slices.SortFunc(matched, func(a, b T) int {
		cmp := store.CursorOf(a.Base()).Compare(store.CursorOf(b.Base()))
		if q.Descending {
			return -cmp
		}
		return cmp
	})
	total := len(matched)

	page := make([]T, 0, min(q.Limit, total))
	for _, row := range matched {
		if q.After != nil {
			cmp := store.CursorOf(row.Base()).Compare(*q.After)
			if (!q.Descending && cmp <= 0) || (q.Descending && cmp >= 0) {
				continue
			}
		}
		page = append(page, tb.schema.Clone(row))
		if q.Limit > 0 && len(page) == q.Limit {
			break
		}
	}
	return page, total, nil
}

func matches[T models.Model](row T, filters []store.Filter, fields []store.Field[T]) bool {
	for i, f := range filters {
		if fields[i].Value(row) != f.Value {
			return false
		}
	}
	return true
}
