package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// Options configures one ingestion run.
type Options struct {
	ProviderID   string
	UFs          []string
	NameOverride string
	// SourceName is the uploaded file's base name, the last-resort
	// feature name.
	SourceName string
	// ProgressEvery emits a progress callback after this many features;
	// zero disables progress.
	ProgressEvery int
	Progress      func(processed, total int)
}

// Status classifies the outcome of an ingestion run.
type Status string

const (
	StatusCreated    Status = "created"
	StatusAllExisted Status = "all_existed"
	StatusNoPolygons Status = "no_polygons"
)

// Report carries the counters of one ingestion run.
type Report struct {
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	Status  Status `json:"status"`
}

// Ingest parses the payload, normalizes each polygonal feature to a 2-D
// MultiPolygon, and persists it as a coverage area for the provider.
//
// Names already present for the provider+UF scope are skipped, first import
// wins; duplicates within the same file are caught by the same set.
// Persistence failures are counted and logged, they do not abort the run.
// Non-polygonal features are ignored entirely. Empty or malformed payloads
// yield zero features and report no_polygons; only an archive without a map
// entry aborts.
func Ingest(ctx context.Context, store coverage.Store, raw []byte, opts Options) (*Report, error) {
	if opts.ProviderID == "" {
		return nil, eris.New("ingest: provider id is required")
	}

	ufs := make([]string, 0, len(opts.UFs))
	for _, raw := range opts.UFs {
		uf, ok := coverage.NormalizeUF(raw)
		if !ok {
			return nil, eris.Errorf("ingest: malformed uf %q", raw)
		}
		ufs = append(ufs, uf)
	}
	if len(ufs) == 0 {
		return nil, eris.New("ingest: at least one uf is required")
	}

	log := zap.L().With(
		zap.String("component", "ingest"),
		zap.String("provider_id", opts.ProviderID),
	)

	var features []Feature
	if len(raw) > 0 {
		var err error
		features, err = DetectAndParse(raw)
		if err != nil {
			if errors.Is(err, ErrNoMapEntry) {
				return nil, err
			}
			log.Warn("payload yielded no features", zap.Error(err))
		}
	}
	if len(features) == 0 {
		report := &Report{Status: StatusNoPolygons}
		log.Info("ingestion finished",
			zap.Int("created", 0),
			zap.Int("skipped", 0),
			zap.Int("errors", 0),
			zap.String("status", string(report.Status)),
		)
		return report, nil
	}

	existing, err := store.AreaNames(ctx, opts.ProviderID, coverage.UFScope(ufs))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load existing area names")
	}

	report := &Report{}
	process := func(feature Feature) {
		mp, ok := toMultiPolygonXY(feature.Geometry)
		if !ok {
			// Points and lines are not coverage; neither skipped nor errored.
			return
		}

		name := opts.NameOverride
		if name == "" {
			name = feature.Name
		}
		if name == "" {
			name = opts.SourceName
		}

		if _, dup := existing[name]; dup {
			report.Skipped++
			return
		}

		area := &coverage.CoverageArea{
			ID:         uuid.NewString(),
			ProviderID: opts.ProviderID,
			Name:       name,
			UFs:        ufs,
			Geometry:   mp,
		}
		if err := store.InsertArea(ctx, area); err != nil {
			report.Errors++
			log.Warn("failed to persist coverage area",
				zap.String("name", name),
				zap.Error(err),
			)
			return
		}

		report.Created++
		existing[name] = struct{}{}
	}

	for i, feature := range features {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "ingest: cancelled")
		}

		process(feature)

		// Progress counts every inspected feature, whatever its outcome.
		if opts.Progress != nil && opts.ProgressEvery > 0 && (i+1)%opts.ProgressEvery == 0 {
			opts.Progress(i+1, len(features))
		}
	}

	if opts.Progress != nil && len(features) > 0 {
		opts.Progress(len(features), len(features))
	}

	switch {
	case report.Created > 0:
		report.Status = StatusCreated
	case report.Skipped > 0:
		report.Status = StatusAllExisted
	default:
		report.Status = StatusNoPolygons
	}

	log.Info("ingestion finished",
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.String("status", string(report.Status)),
	)
	return report, nil
}

// toMultiPolygonXY wraps a single polygon into the multi-polygon shape and
// drops any Z/M component at every nesting depth.
func toMultiPolygonXY(g geom.T) (*geom.MultiPolygon, bool) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return flattenMultiPolygon(t), true
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geom.XY)
		if err := mp.Push(flattenPolygon(t)); err != nil {
			return nil, false
		}
		return mp, true
	default:
		return nil, false
	}
}

func flattenMultiPolygon(mp *geom.MultiPolygon) *geom.MultiPolygon {
	if mp.Layout() == geom.XY {
		return mp
	}
	out := geom.NewMultiPolygon(geom.XY)
	for i := 0; i < mp.NumPolygons(); i++ {
		if err := out.Push(flattenPolygon(mp.Polygon(i))); err != nil {
			continue
		}
	}
	return out
}

func flattenPolygon(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	out := geom.NewPolygon(geom.XY)
	stride := p.Stride()
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		xy := make([]float64, 0, len(flat)/stride*2)
		for j := 0; j+1 < len(flat); j += stride {
			xy = append(xy, flat[j], flat[j+1])
		}
		if err := out.Push(geom.NewLinearRingFlat(geom.XY, xy)); err != nil {
			continue
		}
	}
	return out
}
