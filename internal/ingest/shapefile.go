package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ParseShapefile reads polygon features from an extracted .shp file. The
// feature name comes from a NAME-like attribute column when one exists.
func ParseShapefile(shpPath string) ([]Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		switch strings.ToLower(f.String()) {
		case "name", "nome":
			nameIdx = i
		}
	}

	var features []Feature
	for reader.Next() {
		row, shape := reader.Shape()

		name := ""
		if nameIdx >= 0 {
			name = strings.TrimSpace(reader.ReadAttribute(row, nameIdx))
		}

		g := shapeGeometry(shape)
		if g == nil {
			continue
		}
		features = append(features, Feature{Name: name, Geometry: g})
	}

	return features, nil
}

func shapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Polygon:
		return shpPolygonToMultiPolygon(s)
	case *shp.PolygonZ:
		// Z is discarded; stored geometry is always 2-D.
		return shpPolygonZToMultiPolygon(s)
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	default:
		return nil
	}
}

// shpPolygonToMultiPolygon converts a shapefile Polygon to a MultiPolygon.
// Shapefile parts are flattened one ring per polygon; duplicate-name
// suppression happens later, so malformed parts are skipped rather than
// failing the file.
func shpPolygonToMultiPolygon(p *shp.Polygon) geom.T {
	return partsToMultiPolygon(p.NumParts, p.Parts, func(j int32) (float64, float64) {
		return p.Points[j].X, p.Points[j].Y
	}, int32(len(p.Points)))
}

func shpPolygonZToMultiPolygon(p *shp.PolygonZ) geom.T {
	return partsToMultiPolygon(p.NumParts, p.Parts, func(j int32) (float64, float64) {
		return p.Points[j].X, p.Points[j].Y
	}, int32(len(p.Points)))
}

func partsToMultiPolygon(numParts int32, parts []int32, pointAt func(int32) (float64, float64), numPoints int32) geom.T {
	if numParts == 0 || numPoints == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := numPoints
		if i+1 < numParts {
			end = parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			x, y := pointAt(j)
			flat = append(flat, x, y)
		}
		if len(flat) < 8 {
			continue
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("ingest: skipping malformed shapefile ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("ingest: skipping malformed shapefile part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
