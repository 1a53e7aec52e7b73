package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ParseGeoJSON decodes a GeoJSON FeatureCollection (or a single Feature)
// into features. Geometry layouts with Z or M components are flattened to
// XY by the normalizer.
func ParseGeoJSON(data []byte) ([]Feature, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		// Not a collection; try a single feature.
		var f geojson.Feature
		if ferr := f.UnmarshalJSON(data); ferr != nil {
			return nil, eris.Wrap(err, "ingest: parse geojson")
		}
		fc.Features = []*geojson.Feature{&f}
	}

	var features []Feature
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		features = append(features, Feature{
			Name:     featureName(f.Properties),
			Geometry: f.Geometry,
		})
	}
	return features, nil
}

func featureName(props map[string]any) string {
	for _, key := range []string{"name", "Name", "NAME", "nome"} {
		if v, ok := props[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
