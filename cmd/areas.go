package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	areasProviderID string
	areasAll        bool
)

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Manage coverage areas",
}

var areasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a provider's coverage areas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		areas, err := store.ListAreas(ctx, areasProviderID)
		if err != nil {
			return eris.Wrap(err, "list areas")
		}

		if len(areas) == 0 {
			fmt.Println("No coverage areas.")
			return nil
		}

		for _, a := range areas {
			fmt.Printf("%s  %-32s [%s]\n", a.ID, a.Name, strings.Join(a.UFs, ","))
		}
		return nil
	},
}

var areasDeleteCmd = &cobra.Command{
	Use:   "delete [area-id]",
	Short: "Delete one coverage area, or all of a provider's with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if areasAll == (len(args) == 1) {
			return eris.New("pass exactly one of an area ID or --all")
		}

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if areasAll {
			deleted, err := store.DeleteAreasByProvider(ctx, areasProviderID)
			if err != nil {
				return eris.Wrap(err, "delete provider areas")
			}
			zap.L().Info("areas deleted",
				zap.String("provider", areasProviderID),
				zap.Int64("count", deleted),
			)
			return nil
		}

		if err := store.DeleteArea(ctx, args[0]); err != nil {
			return eris.Wrap(err, "delete area")
		}
		zap.L().Info("area deleted", zap.String("id", args[0]))
		return nil
	},
}

func init() {
	areasCmd.PersistentFlags().StringVar(&areasProviderID, "provider", "", "provider ID (required)")
	_ = areasCmd.MarkPersistentFlagRequired("provider")
	areasDeleteCmd.Flags().BoolVar(&areasAll, "all", false, "delete every area owned by the provider")
	areasCmd.AddCommand(areasListCmd)
	areasCmd.AddCommand(areasDeleteCmd)
	rootCmd.AddCommand(areasCmd)
}
