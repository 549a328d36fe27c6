package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			if seed, ok := cfg.InitialSchedule(); ok {
				if err := be.store.SeedSchedule(cmd.Context(), cfg.Dealership.ID, seed); err != nil {
					return err
				}
			}
			logger.Info().Str("driver", cfg.Database.Driver).Msg("Schema is up to date")
			return nil
		},
	}
}
