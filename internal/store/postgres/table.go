package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
)

// Table implements store.Table with parameterised SQL generated from the
// schema. Identifiers come from the schema only; caller input is always
// passed as a parameter.
type Table[T models.Model] struct {
	schema *store.Schema[T]

	table      string
	selectList string
	insertSQL  string
	getSQL     string
	updateSQL  string
}

// NewTable creates a PostgreSQL table for the given schema.
func NewTable[T models.Model](schema *store.Schema[T]) *Table[T] {
	table := pgx.Identifier{schema.Table}.Sanitize()

	cols := schema.Columns()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	selectList := strings.Join(quoted, ", ")

	// id and organization_id are never rewritten
	sets := []string{
		"updated_at = $3", "is_deleted = $4", "deleted_at = $5",
		"version = $6", "updated_by = $7",
	}
	for i, f := range schema.Fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{f.Name}.Sanitize(), i+8))
	}
	versionParam := len(schema.Fields) + 8

	return &Table[T]{
		schema:     schema,
		table:      table,
		selectList: selectList,
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, selectList, strings.Join(placeholders, ", ")),
		getSQL: fmt.Sprintf("SELECT %s FROM %s WHERE organization_id = $1 AND id = $2",
			selectList, table),
		updateSQL: fmt.Sprintf("UPDATE %s SET %s WHERE organization_id = $1 AND id = $2 AND version = $%d",
			table, strings.Join(sets, ", "), versionParam),
	}
}

func (tb *Table[T]) values(row T) []any {
	b := row.Base()
	vals := []any{
		b.ID, b.OrganizationID, b.CreatedAt, b.UpdatedAt,
		b.IsDeleted, b.DeletedAt, b.Version, b.CreatedBy, b.UpdatedBy,
	}
	for _, f := range tb.schema.Fields {
		vals = append(vals, f.Value(row))
	}
	return vals
}

func (tb *Table[T]) scanTargets(row T) []any {
	b := row.Base()
	targets := []any{
		&b.ID, &b.OrganizationID, &b.CreatedAt, &b.UpdatedAt,
		&b.IsDeleted, &b.DeletedAt, &b.Version, &b.CreatedBy, &b.UpdatedBy,
	}
	for _, f := range tb.schema.Fields {
		targets = append(targets, f.Ptr(row))
	}
	return targets
}

// normalize converts scanned timestamps to UTC.
func normalize(b *models.Entity) {
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if b.DeletedAt != nil {
		d := b.DeletedAt.UTC()
		b.DeletedAt = &d
	}
}

// Insert adds a new row.
func (tb *Table[T]) Insert(ctx context.Context, stx store.Tx, row T) error {
	t, unlock, err := lock(stx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := t.tx.Exec(ctx, tb.insertSQL, tb.values(row)...); err != nil {
		return mapPostgresError("insert", err)
	}
	return nil
}

// Get returns the row, including soft-deleted rows.
func (tb *Table[T]) Get(ctx context.Context, stx store.Tx, orgID, id uuid.UUID) (T, error) {
	var zero T

	t, unlock, err := lock(stx)
	if err != nil {
		return zero, err
	}
	defer unlock()

	row := tb.schema.New()
	err = t.tx.QueryRow(ctx, tb.getSQL, orgID, id).Scan(tb.scanTargets(row)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, store.NotFound(tb.schema.Entity)
		}
		return zero, mapPostgresError("get", err)
	}
	normalize(row.Base())
	return row, nil
}

// CompareAndSwap writes row iff the stored version equals expectedVersion.
// A concurrent writer holding the row lock makes this block until it
// finishes; if it committed, the version moved on and zero rows match.
func (tb *Table[T]) CompareAndSwap(ctx context.Context, stx store.Tx, row T, expectedVersion int64) error {
	t, unlock, err := lock(stx)
	if err != nil {
		return err
	}
	defer unlock()

	b := row.Base()
	args := []any{b.OrganizationID, b.ID, b.UpdatedAt, b.IsDeleted, b.DeletedAt, b.Version, b.UpdatedBy}
	for _, f := range tb.schema.Fields {
		args = append(args, f.Value(row))
	}
	args = append(args, expectedVersion)

	tag, err := t.tx.Exec(ctx, tb.updateSQL, args...)
	if err != nil {
		return mapPostgresError("update", err)
	}
	if tag.RowsAffected() == 0 {
		conflict := store.Conflict("stale version: record changed since it was read")
		t.fail(conflict)
		return conflict
	}
	return nil
}

// Query returns one keyset page and the total number of matching rows.
func (tb *Table[T]) Query(ctx context.Context, stx store.Tx, q store.Query) ([]T, int, error) {
	t, unlock, err := lock(stx)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	where := []string{"organization_id = $1"}
	args := []any{q.OrgID}
	if !q.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	for _, f := range q.Filters {
		if _, ok := tb.schema.Field(f.Field); !ok {
			return nil, 0, store.FieldInvalid(f.Field, "unknown filter field")
		}
		args = append(args, f.Value)
		where = append(where, fmt.Sprintf("%s = $%d", pgx.Identifier{f.Field}.Sanitize(), len(args)))
	}

	var total int
	countSQL := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", tb.table, strings.Join(where, " AND "))
	if err := t.tx.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, mapPostgresError("count", err)
	}

	dir, cmp := "ASC", ">"
	if q.Descending {
		dir, cmp = "DESC", "<"
	}
	if q.After != nil {
		args = append(args, q.After.CreatedAt, q.After.ID)
		where = append(where, fmt.Sprintf("(created_at, id) %s ($%d, $%d)", cmp, len(args)-1, len(args)))
	}

	querySQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at %s, id %s",
		tb.selectList, tb.table, strings.Join(where, " AND "), dir, dir)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		querySQL += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, mapPostgresError("query", err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		row := tb.schema.New()
		if err := rows.Scan(tb.scanTargets(row)...); err != nil {
			return nil, 0, mapPostgresError("scan", err)
		}
		normalize(row.Base())
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPostgresError("iterate", err)
	}

	return result, total, nil
}
