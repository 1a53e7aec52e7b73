package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/ingest"
)

var (
	ingestProviderID string
	ingestUFs        []string
	ingestName       string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest coverage geometry from KML, KMZ, GeoJSON, or zipped shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read geometry file")
		}

		store, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		report, err := ingest.Ingest(ctx, store, raw, ingest.Options{
			ProviderID:    ingestProviderID,
			UFs:           ingestUFs,
			NameOverride:  ingestName,
			SourceName:    args[0],
			ProgressEvery: cfg.Ingest.ProgressEvery,
			Progress: func(processed, total int) {
				zap.L().Info("ingest progress", zap.Int("processed", processed), zap.Int("total", total))
			},
		})
		if err != nil {
			return eris.Wrap(err, "ingest geometry")
		}

		zap.L().Info("ingest complete",
			zap.String("status", string(report.Status)),
			zap.Int("created", report.Created),
			zap.Int("skipped", report.Skipped),
			zap.Int("errors", report.Errors),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProviderID, "provider", "", "provider ID (required)")
	ingestCmd.Flags().StringSliceVar(&ingestUFs, "uf", nil, "UF codes the geometry belongs to (required, repeatable)")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "override area name for every feature")
	_ = ingestCmd.MarkFlagRequired("provider")
	_ = ingestCmd.MarkFlagRequired("uf")
	rootCmd.AddCommand(ingestCmd)
}
