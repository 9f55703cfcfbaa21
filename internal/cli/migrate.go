package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/app"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := bootstrap(cmd.Context(), app.Options{SkipMigrations: true})
			if err != nil {
				return err
			}
			defer cleanup()

			if !application.Postgres.Enabled() {
				return errors.New("migrate: POSTGRES_DSN is required")
			}
			dir := application.Config.Postgres.MigrationsDir
			applied, err := persistence.RunMigrations(cmd.Context(), application.Postgres.PoolHandle(), dir, application.Logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied=%s\n", version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate: ok (%d applied)\n", len(applied))
			return nil
		},
	}
}
