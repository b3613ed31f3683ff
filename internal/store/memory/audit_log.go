package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

var _ store.AuditLog = (*AuditLog)(nil)

// AuditLog implements store.AuditLog using in-memory storage. Records become
// visible to other transactions only when the writing transaction commits.
type AuditLog struct {
	store *Store
}

// NewAuditLog creates an audit log on the given backend.
func NewAuditLog(st *Store) *AuditLog {
	return &AuditLog{store: st}
}

// Append buffers rec in the transaction.
func (a *AuditLog) Append(ctx context.Context, stx store.Tx, rec *models.AuditRecord) error {
	t, err := asTx(a.store, stx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.InvalidState("transaction already finished")
	}

	clone := *rec
	t.audit = append(t.audit, &clone)
	return nil
}

// ListForRecord returns committed and in-transaction entries for one record,
// oldest first.
func (a *AuditLog) ListForRecord(ctx context.Context, stx store.Tx, orgID uuid.UUID, table string, recordID uuid.UUID) ([]*models.AuditRecord, error) {
	t, err := asTx(a.store, stx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	a.store.mu.RLock()
	all := slices.Concat(a.store.audit, t.audit)
	a.store.mu.RUnlock()

	var result []*models.AuditRecord
	for _, rec := range all {
		if rec.OrganizationID == orgID && rec.Table == table && rec.RecordID == recordID {
			clone := *rec
			result = append(result, &clone)
		}
	}

	slices.SortStableFunc(result, func(x, y *models.AuditRecord) int {
		return x.RecordedAt.Compare(y.RecordedAt)
	})
	return result, nil
}
