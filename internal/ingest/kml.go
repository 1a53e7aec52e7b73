// Package ingest turns uploaded map files into normalized coverage areas.
// It accepts KML, KMZ, GeoJSON, and zipped shapefiles; every polygonal
// feature comes out as a 2-D MultiPolygon regardless of source shape.
package ingest

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Feature is one named geometry read from a source file. Geometry may be
// non-polygonal; the normalizer ignores those.
type Feature struct {
	Name     string
	Geometry geom.T
}

// kmlContainer models Document/Folder nesting. Decoding is recursive so
// placemarks are found at any depth.
type kmlContainer struct {
	Documents  []kmlContainer `xml:"Document"`
	Folders    []kmlContainer `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string            `xml:"name"`
	Polygon       *kmlPolygon       `xml:"Polygon"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry"`
	Point         *kmlPoint         `xml:"Point"`
	LineString    *kmlLineString    `xml:"LineString"`
}

type kmlMultiGeometry struct {
	Polygons    []kmlPolygon    `xml:"Polygon"`
	Points      []kmlPoint      `xml:"Point"`
	LineStrings []kmlLineString `xml:"LineString"`
}

type kmlPolygon struct {
	Outer  string   `xml:"outerBoundaryIs>LinearRing>coordinates"`
	Inners []string `xml:"innerBoundaryIs>LinearRing>coordinates"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

type kmlLineString struct {
	Coordinates string `xml:"coordinates"`
}

// ParseKML decodes a KML document into features, in document order within
// each container.
func ParseKML(data []byte) ([]Feature, error) {
	var root struct {
		XMLName    xml.Name       `xml:"kml"`
		Documents  []kmlContainer `xml:"Document"`
		Folders    []kmlContainer `xml:"Folder"`
		Placemarks []kmlPlacemark `xml:"Placemark"`
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, eris.Wrap(err, "ingest: parse kml")
	}

	top := kmlContainer{
		Documents:  root.Documents,
		Folders:    root.Folders,
		Placemarks: root.Placemarks,
	}

	var features []Feature
	collectPlacemarks(top, &features)
	return features, nil
}

func collectPlacemarks(c kmlContainer, out *[]Feature) {
	for _, p := range c.Placemarks {
		if f, ok := placemarkFeature(p); ok {
			*out = append(*out, f)
		}
	}
	for _, d := range c.Documents {
		collectPlacemarks(d, out)
	}
	for _, f := range c.Folders {
		collectPlacemarks(f, out)
	}
}

func placemarkFeature(p kmlPlacemark) (Feature, bool) {
	name := strings.TrimSpace(p.Name)

	switch {
	case p.MultiGeometry != nil && len(p.MultiGeometry.Polygons) > 0:
		mp := geom.NewMultiPolygon(geom.XY)
		for _, kp := range p.MultiGeometry.Polygons {
			poly := kmlPolygonGeom(kp)
			if poly == nil {
				continue
			}
			if err := mp.Push(poly); err != nil {
				continue
			}
		}
		if mp.NumPolygons() == 0 {
			return Feature{}, false
		}
		return Feature{Name: name, Geometry: mp}, true

	case p.Polygon != nil:
		poly := kmlPolygonGeom(*p.Polygon)
		if poly == nil {
			return Feature{}, false
		}
		return Feature{Name: name, Geometry: poly}, true

	case p.Point != nil:
		coords := parseKMLCoordinates(p.Point.Coordinates)
		if len(coords) == 0 {
			return Feature{}, false
		}
		return Feature{Name: name, Geometry: geom.NewPointFlat(geom.XY, coords[:2])}, true

	case p.LineString != nil:
		coords := parseKMLCoordinates(p.LineString.Coordinates)
		if len(coords) < 4 {
			return Feature{}, false
		}
		return Feature{Name: name, Geometry: geom.NewLineStringFlat(geom.XY, coords)}, true
	}

	return Feature{}, false
}

func kmlPolygonGeom(kp kmlPolygon) *geom.Polygon {
	outer := parseKMLCoordinates(kp.Outer)
	if len(outer) < 8 { // a ring needs at least 4 vertices
		return nil
	}

	poly := geom.NewPolygon(geom.XY)
	if err := poly.Push(geom.NewLinearRingFlat(geom.XY, outer)); err != nil {
		return nil
	}
	for _, inner := range kp.Inners {
		hole := parseKMLCoordinates(inner)
		if len(hole) < 8 {
			continue
		}
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, hole)); err != nil {
			continue
		}
	}
	return poly
}

// parseKMLCoordinates reads whitespace-separated "lon,lat[,alt]" triplets
// into flat XY coords. The altitude component is dropped here, which keeps
// every downstream geometry two-dimensional.
func parseKMLCoordinates(text string) []float64 {
	var flat []float64
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lng, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		flat = append(flat, lng, lat)
	}
	return flat
}
