package repository

import (
	"context"

	"github.com/wolfeidau/plugbook/internal/store"
)

// PageRequest selects one page of a listing. An empty Token starts from the
// beginning; Limit zero means DefaultPageSize.
type PageRequest struct {
	Limit int
	Token string
}

// Page is one page of a listing. NextToken is empty on the last page. Total
// counts every matching row, not just this page.
type Page[T any] struct {
	Items     []T
	Total     int
	NextToken string
}

// ListOptions controls List. Filters are exact-match on filterable fields.
type ListOptions struct {
	Filters        map[string]any
	IncludeDeleted bool
	Descending     bool
	Page           PageRequest
}

func pageLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultPageSize, nil
	case limit < 0:
		return 0, store.FieldInvalid("limit", "must not be negative")
	case limit > MaxPageSize:
		return MaxPageSize, nil
	default:
		return limit, nil
	}
}

// List returns one page of records in (created_at, id) order. Pages are
// stable under concurrent inserts: a token resumes strictly after the last
// row it was issued for.
func (r *Repository[T]) List(ctx context.Context, tx store.Tx, scope store.Scope, opts ListOptions) (Page[T], error) {
	if err := scope.Validate(); err != nil {
		return Page[T]{}, err
	}

	filters, err := r.schema.Filters(opts.Filters)
	if err != nil {
		return Page[T]{}, err
	}

	limit, err := pageLimit(opts.Page.Limit)
	if err != nil {
		return Page[T]{}, err
	}

	var after *store.Cursor
	if opts.Page.Token != "" {
		if after, err = store.DecodeCursor(opts.Page.Token); err != nil {
			return Page[T]{}, err
		}
	}

	// one extra row tells us whether another page exists
	items, total, err := r.table.Query(ctx, tx, store.Query{
		OrgID:          scope.OrgID,
		Filters:        filters,
		IncludeDeleted: opts.IncludeDeleted,
		Descending:     opts.Descending,
		After:          after,
		Limit:          limit + 1,
	})
	if err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{Total: total}
	if len(items) > limit {
		items = items[:limit]
		page.NextToken = store.CursorOf(items[limit-1].Base()).Encode()
	}
	page.Items = items
	return page, nil
}

// GetByField lists records whose filterable field equals value.
func (r *Repository[T]) GetByField(ctx context.Context, tx store.Tx, scope store.Scope, field string, value any, page PageRequest, opts ...GetOption) (Page[T], error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	return r.List(ctx, tx, scope, ListOptions{
		Filters:        map[string]any{field: value},
		IncludeDeleted: o.includeDeleted,
		Page:           page,
	})
}

// ListAll walks every page and returns all matching records.
func (r *Repository[T]) ListAll(ctx context.Context, tx store.Tx, scope store.Scope, opts ListOptions) ([]T, error) {
	opts.Page = PageRequest{Limit: MaxPageSize}

	var all []T
	for {
		page, err := r.List(ctx, tx, scope, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextToken == "" {
			return all, nil
		}
		opts.Page.Token = page.NextToken
	}
}
