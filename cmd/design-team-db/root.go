package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/design-team/pkg/config"
	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	"github.com/codeready-toolchain/design-team/pkg/version"
)

type options struct {
	dbURL   string
	appName string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "design-team-db",
		Short: "Inspect and maintain the design team session database",
		Long: `Inspect and maintain the session database used by the design team server.

The database is selected with --db-url, falling back to DB_URL and then to
the local SQLite file the server uses by default.

Quick Start:
  design-team-db info                      # Table row counts
  design-team-db sessions list --user bob  # Sessions of one user
  design-team-db prune --days 30           # Drop sessions older than 30 days`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbURL, "db-url", "", "Database URL (defaults to $DB_URL)")
	root.PersistentFlags().StringVar(&opts.appName, "app", config.DefaultAppName, "Application name sessions are stored under")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newInfoCmd(opts),
		newSessionsCmd(opts),
		newUsersCmd(opts),
		newPruneCmd(opts),
		newClearCmd(opts),
	)
	return root
}

// openStore connects to the selected database and runs migrations.
func openStore(ctx context.Context, opts *options) (*sessions.Store, *database.Client, error) {
	var (
		cfg database.Config
		err error
	)
	if opts.dbURL != "" {
		cfg, err = database.ParseURL(opts.dbURL)
	} else {
		cfg, err = database.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, nil, err
	}

	client, err := database.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return sessions.NewStore(client), client, nil
}

// withStore opens the store for the duration of fn.
func withStore(cmd *cobra.Command, opts *options, fn func(ctx context.Context, store *sessions.Store, client *database.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, client, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return fn(ctx, store, client)
}
