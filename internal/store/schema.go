package store

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/plugbook/internal/models"
)

// Base column names shared by every table, in storage order.
var BaseColumns = []string{
	"id", "organization_id", "created_at", "updated_at",
	"is_deleted", "deleted_at", "version", "created_by", "updated_by",
}

// Patch maps field names to new values.
type Patch map[string]any

// Keys returns the patch keys in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fieldFlags struct {
	filterable bool
	patchable  bool
}

// FieldOption configures a Column.
type FieldOption func(*fieldFlags)

// Filterable allows equality filters on the column.
func Filterable() FieldOption {
	return func(f *fieldFlags) { f.filterable = true }
}

// Patchable allows the column to be changed by update patches.
func Patchable() FieldOption {
	return func(f *fieldFlags) { f.patchable = true }
}

// Field describes one domain column of a record type.
type Field[T models.Model] struct {
	Name       string
	Filterable bool
	Patchable  bool

	value     func(T) any
	ptr       func(T) any
	set       func(T, any) error
	normalize func(any) (any, error)
}

// Value returns the column value of row.
func (f Field[T]) Value(row T) any { return f.value(row) }

// Ptr returns a pointer to the column inside row, for scanning.
func (f Field[T]) Ptr(row T) any { return f.ptr(row) }

// Set assigns v to the column after coercing it to the column type.
func (f Field[T]) Set(row T, v any) error { return f.set(row, v) }

// Normalize coerces v to the column type without assigning it.
func (f Field[T]) Normalize(v any) (any, error) { return f.normalize(v) }

// Column declares a field backed by the struct member ptr points at.
func Column[T models.Model, V comparable](name string, ptr func(T) *V, opts ...FieldOption) Field[T] {
	var flags fieldFlags
	for _, opt := range opts {
		opt(&flags)
	}
	return Field[T]{
		Name:       name,
		Filterable: flags.filterable,
		Patchable:  flags.patchable,
		value:      func(row T) any { return *ptr(row) },
		ptr:        func(row T) any { return ptr(row) },
		set: func(row T, v any) error {
			typed, err := coerce[V](name, v)
			if err != nil {
				return err
			}
			*ptr(row) = typed
			return nil
		},
		normalize: func(v any) (any, error) {
			return coerce[V](name, v)
		},
	}
}

// Schema describes how a record type is stored, cloned, filtered and patched.
type Schema[T models.Model] struct {
	// Table is the storage table name. Never shown to callers.
	Table string
	// Entity is the label used in caller-facing messages.
	Entity string

	New      func() T
	Clone    func(T) T
	Fields   []Field[T]
	Validate func(T) error
}

// Field looks up a domain field by name.
func (s *Schema[T]) Field(name string) (Field[T], bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

// Columns returns base columns followed by domain columns.
func (s *Schema[T]) Columns() []string {
	cols := slices.Clone(BaseColumns)
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// Snapshot returns every column of row keyed by column name, for audit
// records.
func (s *Schema[T]) Snapshot(row T) map[string]any {
	b := row.Base()
	snap := map[string]any{
		"id":              b.ID,
		"organization_id": b.OrganizationID,
		"created_at":      b.CreatedAt,
		"updated_at":      b.UpdatedAt,
		"is_deleted":      b.IsDeleted,
		"deleted_at":      b.DeletedAt,
		"version":         b.Version,
		"created_by":      b.CreatedBy,
		"updated_by":      b.UpdatedBy,
	}
	for _, f := range s.Fields {
		snap[f.Name] = f.Value(row)
	}
	return snap
}

// Filters validates and normalises an equality filter map. Unknown or
// non-filterable keys fail with a ValidationError.
func (s *Schema[T]) Filters(filters map[string]any) ([]Filter, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []FieldError
	out := make([]Filter, 0, len(keys))
	for _, k := range keys {
		f, ok := s.Field(k)
		if !ok {
			problems = append(problems, FieldError{Field: k, Message: "unknown filter field"})
			continue
		}
		if !f.Filterable {
			problems = append(problems, FieldError{Field: k, Message: "field is not filterable"})
			continue
		}
		v, err := f.Normalize(filters[k])
		if err != nil {
			problems = append(problems, fieldErrors(k, err)...)
			continue
		}
		out = append(out, Filter{Field: k, Value: v})
	}
	if len(problems) > 0 {
		return nil, Validation("invalid filter", problems...)
	}
	return out, nil
}

// ApplyPatch assigns every patch entry to row. System-managed and unknown
// fields fail with a ValidationError; row may be partially modified on error.
func (s *Schema[T]) ApplyPatch(row T, patch Patch) error {
	var problems []FieldError
	for _, k := range patch.Keys() {
		if slices.Contains(BaseColumns, k) {
			problems = append(problems, FieldError{Field: k, Message: "field is managed by the system"})
			continue
		}
		f, ok := s.Field(k)
		if !ok {
			problems = append(problems, FieldError{Field: k, Message: "unknown field"})
			continue
		}
		if !f.Patchable {
			problems = append(problems, FieldError{Field: k, Message: "field is read-only"})
			continue
		}
		if err := f.Set(row, patch[k]); err != nil {
			problems = append(problems, fieldErrors(k, err)...)
		}
	}
	if len(problems) > 0 {
		return Validation("invalid patch", problems...)
	}
	return nil
}

// CheckPatch validates patch shape against a scratch record.
func (s *Schema[T]) CheckPatch(patch Patch) error {
	if len(patch) == 0 {
		return Validation("empty patch")
	}
	return s.ApplyPatch(s.New(), patch)
}

func fieldErrors(field string, err error) []FieldError {
	if e, ok := err.(*Error); ok && len(e.Fields) > 0 {
		return e.Fields
	}
	return []FieldError{{Field: field, Message: err.Error()}}
}

var (
	timeType = reflect.TypeFor[time.Time]()
	uuidType = reflect.TypeFor[uuid.UUID]()
)

// coerce converts v to V. Values of the same kind family convert (a plain
// string into a named string type, whole floats into ints), RFC3339 strings
// into times and canonical strings into UUIDs.
func coerce[V any](name string, v any) (V, error) {
	var zero V
	if typed, ok := v.(V); ok {
		return typed, nil
	}
	rt := reflect.TypeFor[V]()
	out, err := coerceValue(name, v, rt)
	if err != nil {
		return zero, err
	}
	return out.Interface().(V), nil
}

func coerceValue(name string, v any, rt reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch rt.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			return reflect.Zero(rt), nil
		}
		return reflect.Value{}, FieldInvalid(name, "must not be null")
	}

	rv := reflect.ValueOf(v)
	if rv.Type() == rt {
		return rv, nil
	}

	if rt.Kind() == reflect.Pointer {
		elem, err := coerceValue(name, v, rt.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(rt.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	switch {
	case rt == timeType && rv.Kind() == reflect.String:
		t, err := time.Parse(time.RFC3339Nano, rv.String())
		if err != nil {
			return reflect.Value{}, FieldInvalid(name, "expected RFC3339 timestamp")
		}
		return reflect.ValueOf(t.UTC()), nil
	case rt == uuidType && rv.Kind() == reflect.String:
		id, err := uuid.Parse(rv.String())
		if err != nil {
			return reflect.Value{}, FieldInvalid(name, "expected uuid")
		}
		return reflect.ValueOf(id), nil
	case rt.Kind() == reflect.String && rv.Kind() == reflect.String:
		return rv.Convert(rt), nil
	case rt.Kind() == reflect.Bool && rv.Kind() == reflect.Bool:
		return rv.Convert(rt), nil
	case isInt(rt.Kind()) && isInt(rv.Kind()):
		return rv.Convert(rt), nil
	case isInt(rt.Kind()) && isFloat(rv.Kind()):
		f := rv.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, FieldInvalid(name, "expected integer")
		}
		return reflect.ValueOf(int64(f)).Convert(rt), nil
	case isFloat(rt.Kind()) && (isFloat(rv.Kind()) || isInt(rv.Kind())):
		return rv.Convert(rt), nil
	}

	return reflect.Value{}, FieldInvalid(name, "expected %s, got %s", describe(rt), describe(rv.Type()))
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func describe(t reflect.Type) string {
	switch {
	case t == timeType:
		return "timestamp"
	case t == uuidType:
		return "uuid"
	case isInt(t.Kind()):
		return "integer"
	case isFloat(t.Kind()):
		return "number"
	}
	return fmt.Sprint(t.Kind())
}
