package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
	"github.com/horizonnet/coverage-cli/pkg/geocode"
)

func geocodeClient() geocode.Client {
	return geocode.NewClient(geocode.Config{
		ViaCEPBaseURL:    cfg.Geocode.ViaCEPBaseURL,
		BrasilAPIBaseURL: cfg.Geocode.BrasilAPIBaseURL,
		NominatimBaseURL: cfg.Geocode.NominatimBaseURL,
		UserAgent:        cfg.Geocode.UserAgent,
		NominatimRPS:     cfg.Geocode.NominatimRPS,
		Timeout:          time.Duration(cfg.Geocode.TimeoutSecs) * time.Second,
	})
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <cep>",
	Short: "Resolve a CEP and list the plans available there",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cep, ok := coverage.NormalizeCEP(args[0])
		if !ok {
			return eris.Errorf("invalid CEP %q", args[0])
		}

		res, err := geocodeClient().Resolve(ctx, cep)
		if err != nil {
			return eris.Wrap(err, "resolve cep")
		}
		if !res.Found {
			return eris.Errorf("no address found for CEP %s", cep)
		}

		fmt.Printf("Address: %s, %s - %s (CEP %s)\n", res.Address.Street, res.Address.City, res.Address.UF, cep)
		if res.Coords != nil {
			fmt.Printf("Coordinates: %.6f, %.6f (%s)\n", res.Coords.Lat, res.Coords.Lng, res.Source)
		}

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		resolver := coverage.NewResolver(store)
		plans, err := resolver.FindAvailablePlans(ctx, coverage.Query{
			CEP:    cep,
			City:   res.Address.City,
			UF:     res.Address.UF,
			Coords: res.Coords,
		})
		if err != nil {
			return eris.Wrap(err, "find available plans")
		}

		if len(plans) == 0 {
			fmt.Println("No plans available at this location.")
			return nil
		}

		fmt.Printf("\n%d plan(s) available:\n", len(plans))
		for _, p := range plans {
			provider := p.ProviderID
			if p.Provider != nil {
				provider = p.Provider.Name
			}
			fmt.Printf("  %-24s %-20s %4d/%d Mbps  R$ %d.%02d\n",
				p.Name, provider, p.DownloadMbps, p.UploadMbps, p.PriceCents/100, p.PriceCents%100)
		}

		zap.L().Info("resolution complete",
			zap.String("cep", cep),
			zap.Int("plans", len(plans)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
