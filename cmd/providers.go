package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

var providerLogoURL string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage providers",
}

var providersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		p := &coverage.Provider{
			ID:      uuid.NewString(),
			Name:    args[0],
			LogoURL: providerLogoURL,
		}
		if err := store.CreateProvider(ctx, p); err != nil {
			return eris.Wrap(err, "create provider")
		}

		zap.L().Info("provider created",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
		)
		fmt.Println(p.ID)
		return nil
	},
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		providers, err := store.ListProviders(ctx)
		if err != nil {
			return eris.Wrap(err, "list providers")
		}

		for _, p := range providers {
			fmt.Printf("%s  %s\n", p.ID, p.Name)
		}
		return nil
	},
}

var (
	planProviderID string
	planDownload   int
	planUpload     int
	planPriceCents int
	planMonths     int
	planFeatured   bool
	planBenefits   []string
)

var plansAddCmd = &cobra.Command{
	Use:   "add-plan <name>",
	Short: "Register an active plan for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		plan := &coverage.Plan{
			ID:             uuid.NewString(),
			ProviderID:     planProviderID,
			Name:           args[0],
			DownloadMbps:   planDownload,
			UploadMbps:     planUpload,
			PriceCents:     planPriceCents,
			ContractMonths: planMonths,
			Featured:       planFeatured,
			Active:         true,
		}
		for _, b := range planBenefits {
			plan.Benefits = append(plan.Benefits, coverage.Benefit{
				ID:          uuid.NewString(),
				PlanID:      plan.ID,
				Description: b,
			})
		}

		if err := store.CreatePlan(ctx, plan); err != nil {
			return eris.Wrap(err, "create plan")
		}

		zap.L().Info("plan created",
			zap.String("id", plan.ID),
			zap.String("provider", plan.ProviderID),
			zap.String("name", plan.Name),
		)
		fmt.Println(plan.ID)
		return nil
	},
}

func init() {
	providersAddCmd.Flags().StringVar(&providerLogoURL, "logo-url", "", "provider logo URL")

	plansAddCmd.Flags().StringVar(&planProviderID, "provider", "", "provider ID (required)")
	plansAddCmd.Flags().IntVar(&planDownload, "download", 0, "download speed in Mbps")
	plansAddCmd.Flags().IntVar(&planUpload, "upload", 0, "upload speed in Mbps")
	plansAddCmd.Flags().IntVar(&planPriceCents, "price-cents", 0, "monthly price in cents")
	plansAddCmd.Flags().IntVar(&planMonths, "contract-months", 0, "contract length in months")
	plansAddCmd.Flags().BoolVar(&planFeatured, "featured", false, "mark plan as featured")
	plansAddCmd.Flags().StringSliceVar(&planBenefits, "benefit", nil, "benefit description (repeatable)")
	_ = plansAddCmd.MarkFlagRequired("provider")

	providersCmd.AddCommand(providersAddCmd)
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(plansAddCmd)
	rootCmd.AddCommand(providersCmd)
}
