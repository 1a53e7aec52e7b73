package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/fetcher"
	"github.com/horizonnet/coverage-cli/internal/importer"
)

var importProviderID string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import serviceability data for a provider",
}

var importCEPsCmd = &cobra.Command{
	Use:   "ceps <file>",
	Short: "Import a CEP list (txt, csv, xlsx, or zip)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := fetcher.RowsFromFile(args[0])
		if err != nil {
			return err
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if len(row) > 0 {
				lines = append(lines, row[0])
			}
		}

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		written, err := importer.ImportCEPs(ctx, store, importProviderID, lines, cfg.Import.CEPBatchSize, importProgress("ceps"))
		if err != nil {
			zap.L().Error("cep import aborted",
				zap.Int64("written", written),
				zap.Error(err),
			)
			return eris.Wrap(err, "import ceps")
		}

		zap.L().Info("cep import complete",
			zap.Int64("written", written),
			zap.String("file", args[0]),
		)
		return nil
	},
}

var importCitiesCmd = &cobra.Command{
	Use:   "cities <file>",
	Short: "Import a city/UF table (csv, xlsx, or zip)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := fetcher.RowsFromFile(args[0])
		if err != nil {
			return err
		}

		cities, err := importer.ParseCityRows(rows)
		if err != nil {
			return eris.Wrap(err, "parse city rows")
		}
		if len(cities) == 0 {
			return eris.Errorf("no usable city rows in %q", args[0])
		}

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		written, err := importer.ImportCities(ctx, store, importProviderID, cities, cfg.Import.CityBatchSize, importProgress("cities"))
		if err != nil {
			zap.L().Error("city import aborted",
				zap.Int64("written", written),
				zap.Error(err),
			)
			return eris.Wrap(err, "import cities")
		}

		zap.L().Info("city import complete",
			zap.Int64("written", written),
			zap.String("file", args[0]),
		)
		return nil
	},
}

func importProgress(kind string) func(done, total int) {
	return func(done, total int) {
		zap.L().Info("import progress",
			zap.String("kind", kind),
			zap.Int("done", done),
			zap.Int("total", total),
		)
	}
}

func init() {
	importCmd.PersistentFlags().StringVar(&importProviderID, "provider", "", "provider ID (required)")
	_ = importCmd.MarkPersistentFlagRequired("provider")
	importCmd.AddCommand(importCEPsCmd)
	importCmd.AddCommand(importCitiesCmd)
	rootCmd.AddCommand(importCmd)
}
