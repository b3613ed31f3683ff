package export

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultPageSize = 500

// Source is what an organization export reads from. *contacts.Engine
// satisfies it.
type Source interface {
	List(ctx context.Context, scope store.Scope, opts repository.ListOptions) (repository.Page[*models.Contact], error)
	ListInteractions(ctx context.Context, scope store.Scope, contactID uuid.UUID, page repository.PageRequest) (repository.Page[*models.ContactInteraction], error)
}

// Options controls Contacts.
type Options struct {
	// IncludeDeleted exports soft-deleted contacts too. Their interactions
	// were deleted with them and are not exported.
	IncludeDeleted bool
	// PageSize is the listing page size; zero means 500.
	PageSize int
}

// Contacts writes every contact of the scope's organization, each followed by
// its interactions, oldest first. Pages are read in separate units of work, so
// a concurrent writer may or may not be reflected in the archive.
func Contacts(ctx context.Context, src Source, scope store.Scope, w *Writer, opts Options) error {
	limit := opts.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	contactSchema := schema.Contacts()
	interactionSchema := schema.Interactions()
	log := zerolog.Ctx(ctx)
	archived := telemetry.GetMetrics().ArchivedRecordsTotal
	orgAttr := metric.WithAttributes(attribute.String("org_id", scope.OrgID.String()))

	var (
		token   string
		written = w.Records()
	)
	for {
		page, err := src.List(ctx, scope, repository.ListOptions{
			IncludeDeleted: opts.IncludeDeleted,
			Page:           repository.PageRequest{Limit: limit, Token: token},
		})
		if err != nil {
			return fmt.Errorf("failed to list contacts: %w", err)
		}

		for _, c := range page.Items {
			if err := w.Write(schema.TableContacts, contactSchema.Snapshot(c)); err != nil {
				return err
			}
			if c.IsDeleted {
				continue
			}
			if err := interactions(ctx, src, scope, c.ID, limit, func(in *models.ContactInteraction) error {
				return w.Write(schema.TableInteractions, interactionSchema.Snapshot(in))
			}); err != nil {
				return err
			}
		}

		archived.Add(ctx, int64(w.Records()-written), orgAttr)
		written = w.Records()
		log.Debug().Int("contacts", len(page.Items)).Int("records", written).Msg("Exported contact page")

		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

func interactions(ctx context.Context, src Source, scope store.Scope, contactID uuid.UUID, limit int, fn func(*models.ContactInteraction) error) error {
	var token string
	for {
		page, err := src.ListInteractions(ctx, scope, contactID, repository.PageRequest{Limit: limit, Token: token})
		if err != nil {
			return fmt.Errorf("failed to list interactions of contact %s: %w", contactID, err)
		}
		for _, in := range page.Items {
			if err := fn(in); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}
