package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the coverage schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate schema")
		}

		zap.L().Info("migration complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
