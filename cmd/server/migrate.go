package main

import (
	"fmt"

	"github.com/rongwang/tally-server/internal/config"
	"github.com/rongwang/tally-server/internal/utils"
	"github.com/spf13/cobra"
)

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Create the database schema and exit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			logger := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)

			// SetupDatabase creates the tables
			db, err := config.SetupDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			defer db.Close()

			logger.Info("schema ready", "database", cfg.Database.DBName)
			return nil
		},
	}
}
