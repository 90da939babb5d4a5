package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the local store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, cfg, logger, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		logger.Info("store migrated", "dsn", cfg.Store.DSN)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
