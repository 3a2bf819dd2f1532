package main

import (
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/roomchat/internal/postgres"

	"github.com/spf13/cobra"
)

func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				return fmt.Errorf("migrate: store.driver is %q, nothing to migrate", cfg.Store.Driver)
			}

			pool, err := postgres.NewPool(cmd.Context(), pgConfig(cfg))
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			if err := postgres.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			slog.Info("schema applied")
			return nil
		},
	}
}
