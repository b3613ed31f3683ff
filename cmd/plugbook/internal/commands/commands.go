package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/bootstrap"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/logger"
	"github.com/wolfeidau/plugbook/internal/models"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/telemetry"
)

type Globals struct {
	Debug      bool
	ConfigPath string
	Tracing    bool
	Version    string
}

// ScopeFlags identify the tenant and actor a command runs as.
type ScopeFlags struct {
	Org   string `help:"Organization ID" required:"" env:"PLUGBOOK_ORG_ID"`
	Actor string `help:"Actor ID; omit for system writes" env:"PLUGBOOK_ACTOR_ID"`
}

func (s ScopeFlags) Scope() (store.Scope, error) {
	org, err := parseID("org", s.Org)
	if err != nil {
		return store.Scope{}, err
	}
	var actor uuid.UUID
	if s.Actor != "" {
		if actor, err = parseID("actor", s.Actor); err != nil {
			return store.Scope{}, err
		}
	}
	return store.NewScope(org, actor), nil
}

func parseID(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", name, value, err)
	}
	return id, nil
}

// session is an opened configuration with its resources.
type session struct {
	ctx context.Context
	cfg *config.Config
	res *bootstrap.Resources

	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func open(ctx context.Context, globals *Globals) (*session, error) {
	l := logger.Setup(globals.Debug)
	log.Logger = l
	ctx = l.WithContext(ctx)

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	s := &session{ctx: ctx, cfg: cfg}

	if globals.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName:    "plugbook",
			Version:        globals.Version,
			SampleRatio:    cfg.Telemetry.SampleRatio,
			MetricInterval: cfg.Telemetry.MetricInterval,
		})
		if err != nil {
			l.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		} else {
			s.closers = append(s.closers, func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					l.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			})
		}
	}

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.res = res
	s.closers = append(s.closers, res.Close)

	if cfg.Store == config.StoreMemory {
		zerolog.Ctx(ctx).Warn().Msg("Using the in-memory store; data is discarded on exit")
	}
	return s, nil
}

func printContact(c *models.Contact) {
	fmt.Printf("ID:               %s\n", c.ID)
	fmt.Printf("Name:             %s\n", strings.TrimSpace(c.FirstName+" "+c.LastName))
	if c.Email != "" {
		fmt.Printf("Email:            %s\n", c.Email)
	}
	if c.Company != "" {
		fmt.Printf("Company:          %s\n", c.Company)
	}
	fmt.Printf("Type:             %s\n", c.ContactType)
	fmt.Printf("Status:           %s\n", c.Status)
	fmt.Printf("Lead score:       %d\n", c.LeadScore)
	if c.LastInteraction != nil {
		fmt.Printf("Last interaction: %s\n", c.LastInteraction.Format(time.RFC3339))
	}
	fmt.Printf("Version:          %d\n", c.Version)
	if c.IsDeleted {
		fmt.Printf("Deleted at:       %s\n", c.DeletedAt.Format(time.RFC3339))
	}
}

func printContacts(items []*models.Contact, total int, next string) {
	fmt.Printf("Contacts (%d of %d):\n", len(items), total)
	if len(items) == 0 {
		fmt.Println("No contacts found.")
		return
	}

	fmt.Printf("%-36s %-24s %-8s %-16s %-5s %-7s\n", "ID", "Name", "Type", "Status", "Score", "Version")
	fmt.Println(strings.Repeat("─", 102))
	for _, c := range items {
		name := truncate(strings.TrimSpace(c.FirstName+" "+c.LastName), 24)
		fmt.Printf("%-36s %-24s %-8s %-16s %-5d %-7d\n", c.ID, name, c.ContactType, c.Status, c.LeadScore, c.Version)
	}
	printNext(next)
}

func printNext(next string) {
	if next != "" {
		fmt.Printf("\nNext page: --token %s\n", next)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
