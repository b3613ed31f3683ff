// Package bootstrap wires a storage backend and the services running on it
// from a config.Config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/audit"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/contacts"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/repository"
	"github.com/wolfeidau/plugbook/internal/schema"
	"github.com/wolfeidau/plugbook/internal/service"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/store/memory"
	"github.com/wolfeidau/plugbook/internal/store/postgres"
	"github.com/wolfeidau/plugbook/internal/uow"
)

// Resources holds the opened backend and every service built on it.
type Resources struct {
	Backend  store.Backend
	Runner   *service.Runner
	Contacts *contacts.Engine
	Events   *service.EventService
}

// Close releases the backend.
func (r *Resources) Close() {
	r.Backend.Close()
}

// Open creates the backend selected by cfg and the services on top of it.
func Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var (
		backend store.Backend
		repos   repositories
	)

	switch cfg.Store {
	case config.StorePostgres:
		st, err := postgres.Open(ctx, &postgres.PoolConfig{
			ConnString:       cfg.Postgres.ConnString,
			MaxConns:         cfg.PoolSize,
			MinConns:         min(cfg.Postgres.MinConns, cfg.PoolSize),
			MaxConnLifetime:  cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Postgres.MaxConnIdleTime,
			StatementTimeout: cfg.Postgres.StatementTimeout,
			AcquireTimeout:   cfg.PoolAcquireTimeout,
			ConnectAttempts:  cfg.Postgres.ConnectAttempts,
			AutoMigrate:      cfg.Postgres.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		backend = st
		repos = postgresRepositories()
		log.Info().Int32("pool_size", cfg.PoolSize).Msg("Using PostgreSQL store")

	default:
		st := memory.NewStore(memory.Config{
			PoolSize:       int64(cfg.PoolSize),
			AcquireTimeout: cfg.PoolAcquireTimeout,
		})
		backend = st
		repos = memoryRepositories(st)
		log.Info().Int32("pool_size", cfg.PoolSize).Msg("Using in-memory store")
	}

	runner := service.NewRunner(uow.NewManager(backend), service.RetryPolicyFrom(cfg))
	rec := audit.NewRecorder(repos.auditLog)

	return &Resources{
		Backend:  backend,
		Runner:   runner,
		Contacts: contacts.NewEngine(runner, repos.contacts, repos.interactions, rec, cfg.Scoring),
		Events:   service.NewEventService(runner, repos.events, repos.attendees, repos.contacts, rec),
	}, nil
}

// repositories are the tables of one backend.
type repositories struct {
	contacts     *repository.Repository[*models.Contact]
	interactions *repository.Repository[*models.ContactInteraction]
	events       *repository.Repository[*models.Event]
	attendees    *repository.Repository[*models.EventAttendee]
	auditLog     store.AuditLog
}

func memoryRepositories(st *memory.Store) repositories {
	contactSchema := schema.Contacts()
	interactionSchema := schema.Interactions()
	eventSchema := schema.Events()
	attendeeSchema := schema.Attendees()

	return repositories{
		contacts:     repository.New(memory.NewTable(st, contactSchema), contactSchema),
		interactions: repository.New(memory.NewTable(st, interactionSchema), interactionSchema),
		events:       repository.New(memory.NewTable(st, eventSchema), eventSchema),
		attendees:    repository.New(memory.NewTable(st, attendeeSchema), attendeeSchema),
		auditLog:     memory.NewAuditLog(st),
	}
}

func postgresRepositories() repositories {
	contactSchema := schema.Contacts()
	interactionSchema := schema.Interactions()
	eventSchema := schema.Events()
	attendeeSchema := schema.Attendees()

	return repositories{
		contacts:     repository.New(postgres.NewTable(contactSchema), contactSchema),
		interactions: repository.New(postgres.NewTable(interactionSchema), interactionSchema),
		events:       repository.New(postgres.NewTable(eventSchema), eventSchema),
		attendees:    repository.New(postgres.NewTable(attendeeSchema), attendeeSchema),
		auditLog:     postgres.NewAuditLog(),
	}
}
