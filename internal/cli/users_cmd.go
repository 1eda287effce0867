package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/scoutbot/internal/store"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the sqlite user directory",
	}

	cmd.AddCommand(newUsersListCmd())
	cmd.AddCommand(newUsersGrantCmd())
	cmd.AddCommand(newUsersRevokeCmd())
	cmd.AddCommand(newUsersEmailCmd())
	cmd.AddCommand(newUsersReportsCmd())

	return cmd
}

// withDB opens the configured database for one command.
func withDB(fn func(ctx context.Context, db *store.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.Directory != "sqlite" {
		log.Warn().Str("directory", cfg.Auth.Directory).Msg("auth.directory is not sqlite, changes have no effect until it is")
	}
	db, err := store.Open(paths.Database(cfg.Store), log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *store.DB) error {
				users, err := store.NewUserDirectory(db).List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tACTIVE\tEMAIL\tCREATED")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", u.ID, u.Active, u.Email, u.CreatedAt.Format(time.DateOnly))
				}
				return tw.Flush()
			})
		},
	}
}

func newUsersGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Authorize a user (for example irc:alice)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *store.DB) error {
				if err := store.NewUserDirectory(db).Grant(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %s\n", args[0])
				return nil
			})
		},
	}
}

func newUsersRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Deauthorize a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *store.DB) error {
				if err := store.NewUserDirectory(db).Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
				return nil
			})
		},
	}
}

func newUsersEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "email <user-id> <address>",
		Short: "Set the address reports are mailed to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *store.DB) error {
				if err := store.NewUserDirectory(db).SetEmail(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Email of %s set to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newUsersReportsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reports <user-id>",
		Short: "Show the reports delivered to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *store.DB) error {
				entries, err := store.NewReportLog(db).ForUser(ctx, args[0], limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DELIVERED\tVIA\tFILE\tSUBJECT")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.DateTime), e.Via, e.Filename, e.Subject)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports (0 for all)")
	return cmd
}
