package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/plugbook/cmd/plugbook/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool   `help:"Enable debug mode."`
		Config  string `help:"Path to a YAML config file." type:"path" env:"PLUGBOOK_CONFIG"`
		Tracing bool   `help:"Export traces and metrics over OTLP." env:"PLUGBOOK_TRACING"`
		Version kong.VersionFlag

		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Contact commands.ContactCmd `cmd:"" help:"Manage contacts"`
		Event   commands.EventCmd   `cmd:"" help:"Manage events and attendees"`
		Demo    commands.DemoCmd    `cmd:"" help:"Walk a contact through its lifecycle on the configured store"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:      cli.Debug,
		ConfigPath: cli.Config,
		Tracing:    cli.Tracing,
		Version:    version,
	})
	cmd.FatalIfErrorf(err)
}
