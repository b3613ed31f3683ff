package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/logger"
	"github.com/wolfeidau/plugbook/internal/store/postgres"
)

type MigrateCmd struct {
	Status bool `help:"List migrations and whether they are applied, without applying any"`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store != config.StorePostgres {
		return errors.New("migrations only apply to the postgres store (set PLUGBOOK_STORE=postgres)")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{
		ConnString:      cfg.Postgres.ConnString,
		MaxConns:        cfg.PoolSize,
		MinConns:        min(cfg.Postgres.MinConns, cfg.PoolSize),
		ConnectAttempts: cfg.Postgres.ConnectAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if m.Status {
		statuses, err := postgres.Status(ctx, pool)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		fmt.Printf("%-8s %-40s %s\n", "Version", "Name", "Applied At")
		fmt.Println(strings.Repeat("─", 80))
		for _, s := range statuses {
			applied := "pending"
			if s.AppliedAt != nil {
				applied = s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%-8d %-40s %s\n", s.Version, s.Name, applied)
		}
		return nil
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
