package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
)

const timeLayout = "2006-01-02 15:04:05"

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database location and table row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *sessions.Store, client *database.Client) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, headerStyle.Render("Database"))
				fmt.Fprintf(out, "  dialect: %s\n\n", client.Dialect())
				fmt.Fprintln(out, headerStyle.Render("Tables"))
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, st := range stats {
					fmt.Fprintf(w, "  %s\t%s\n", st.Table, countStyle.Render(fmt.Sprint(st.Rows)))
				}
				return w.Flush()
			})
		},
	}
}

func newSessionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or delete sessions",
	}

	var user string
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *sessions.Store, _ *database.Client) error {
				list, err := store.List(ctx, sessions.ListRequest{AppName: opts.appName, UserID: user})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No sessions found.")
					return nil
				}
				fmt.Fprintf(out, "%s %s\n\n", headerStyle.Render("Sessions"), countStyle.Render(fmt.Sprintf("(%d)", len(list))))
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "  ID\tUSER\tCREATED\tUPDATED")
				for _, s := range list {
					fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
						idStyle.Render(s.ID), s.UserID,
						dateStyle.Render(s.CreateTime.Local().Format(timeLayout)),
						dateStyle.Render(s.UpdateTime.Local().Format(timeLayout)))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "Only list sessions of this user")

	del := &cobra.Command{
		Use:   "delete <user-id> <session-id>",
		Short: "Delete one session and its events",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *sessions.Store, _ *database.Client) error {
				err := store.Delete(ctx, sessions.DeleteRequest{AppName: opts.appName, UserID: args[0], SessionID: args[1]})
				if errors.Is(err, sessions.ErrNotFound) {
					return fmt.Errorf("session %s of user %s not found", args[1], args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", idStyle.Render(args[1]))
				return nil
			})
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func newUsersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage per-user data",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete every session, event and state row of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *sessions.Store, _ *database.Client) error {
				n, err := store.DeleteUserData(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s sessions of user %s\n", countStyle.Render(fmt.Sprint(n)), args[0])
				return nil
			})
		},
	})
	return cmd
}

func newPruneCmd(opts *options) *cobra.Command {
	var (
		days     int
		emptyTTL time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative, got %d", days)
			}
			return withStore(cmd, opts, func(ctx context.Context, store *sessions.Store, _ *database.Client) error {
				now := time.Now()
				out := cmd.OutOrStdout()
				if days > 0 {
					n, err := store.DeleteOlderThan(ctx, now.AddDate(0, 0, -days))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %s sessions older than %d days\n", countStyle.Render(fmt.Sprint(n)), days)
				}
				if emptyTTL > 0 {
					n, err := store.DeleteEmptyOlderThan(ctx, now.Add(-emptyTTL))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %s empty sessions older than %s\n", countStyle.Render(fmt.Sprint(n)), emptyTTL)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Delete sessions created more than this many days ago (0 skips)")
	cmd.Flags().DurationVar(&emptyTTL, "empty-ttl", 0, "Also delete sessions without events older than this")
	return cmd
}

func newClearCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all data in every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the database without --yes")
			}
			return withStore(cmd, opts, func(ctx context.Context, store *sessions.Store, _ *database.Client) error {
				if err := store.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("All data cleared."))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting all data")
	return cmd
}
