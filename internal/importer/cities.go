package importer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

var (
	cityHeaders = map[string]bool{"city": true, "cidade": true, "municipio": true, "município": true}
	ufHeaders   = map[string]bool{"uf": true, "estado": true, "state": true}
)

// ParseCityRows reads spreadsheet rows whose first row is a header carrying
// a city column and a UF column (several language variants tolerated,
// case-insensitive). Rows missing either field are discarded.
func ParseCityRows(rows [][]string) ([]coverage.ServiceableCity, error) {
	if len(rows) == 0 {
		return nil, eris.New("importer: no rows")
	}

	cityIdx, ufIdx := -1, -1
	for i, header := range rows[0] {
		h := strings.ToLower(strings.TrimSpace(header))
		switch {
		case cityHeaders[h]:
			cityIdx = i
		case ufHeaders[h]:
			ufIdx = i
		}
	}
	if cityIdx < 0 || ufIdx < 0 {
		return nil, eris.New("importer: city/uf columns not found in header")
	}

	var cities []coverage.ServiceableCity
	for _, row := range rows[1:] {
		if cityIdx >= len(row) || ufIdx >= len(row) {
			continue
		}
		city := coverage.NormalizeCity(row[cityIdx])
		uf, ok := coverage.NormalizeUF(row[ufIdx])
		if city == "" || !ok {
			continue
		}
		cities = append(cities, coverage.ServiceableCity{City: city, UF: uf})
	}
	return cities, nil
}

// ImportCities writes normalized city rows for a provider in batches with
// the same partial-success semantics as ImportCEPs.
func ImportCities(ctx context.Context, store coverage.Store, providerID string, cities []coverage.ServiceableCity, batchSize int, progress coverage.ProgressFunc) (int64, error) {
	if providerID == "" {
		return 0, eris.New("importer: provider id is required")
	}

	cities = dedupeCities(cities)
	if len(cities) == 0 {
		return 0, nil
	}

	n, err := store.InsertCities(ctx, providerID, cities, batchSize, progress)
	if err != nil {
		return n, eris.Wrap(err, "importer: import cities")
	}

	zap.L().Info("city import finished",
		zap.String("provider_id", providerID),
		zap.Int("accepted", len(cities)),
		zap.Int64("written", n),
	)
	return n, nil
}

func dedupeCities(cities []coverage.ServiceableCity) []coverage.ServiceableCity {
	seen := make(map[string]struct{}, len(cities))
	var out []coverage.ServiceableCity
	for _, c := range cities {
		key := c.City + "|" + c.UF
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
