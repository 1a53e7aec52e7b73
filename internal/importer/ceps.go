// Package importer streams postal-code and city lists into the coverage
// store in bounded batches.
package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// CleanCEPLines normalizes raw input lines to 8-digit CEPs. Lines with 8
// digits pass, 7-digit lines are zero-left-padded, everything else is
// discarded silently.
func CleanCEPLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if cep, ok := coverage.NormalizeCEP(line); ok {
			out = append(out, cep)
		}
	}
	return out
}

// ImportCEPs cleans and writes postal codes for a provider. Batches that
// already committed stand when a later batch fails; the error surfaces with
// the remainder unattempted.
func ImportCEPs(ctx context.Context, store coverage.Store, providerID string, lines []string, batchSize int, progress coverage.ProgressFunc) (int64, error) {
	if providerID == "" {
		return 0, eris.New("importer: provider id is required")
	}

	ceps := dedupe(CleanCEPLines(lines))
	if len(ceps) == 0 {
		return 0, nil
	}

	n, err := store.InsertCEPs(ctx, providerID, ceps, batchSize, progress)
	if err != nil {
		return n, eris.Wrap(err, "importer: import ceps")
	}

	zap.L().Info("cep import finished",
		zap.String("provider_id", providerID),
		zap.Int("input_lines", len(lines)),
		zap.Int("accepted", len(ceps)),
		zap.Int64("written", n),
	)
	return n, nil
}

// dedupe drops repeated values preserving first-seen order. Repeats within
// one upload would otherwise break the primary key mid-batch.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
