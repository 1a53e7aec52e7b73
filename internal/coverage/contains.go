package coverage

import "github.com/twpayne/go-geom"

// ContainsPoint reports whether the multi-polygon contains the point. A point
// is inside when it falls within any polygon's outer ring and outside all of
// that polygon's holes. Used by backends without a native spatial predicate.
func ContainsPoint(mp *geom.MultiPolygon, c Coordinates) bool {
	if mp == nil {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !ringContains(poly.LinearRing(0), c) {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			if ringContains(poly.LinearRing(j), c) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// ringContains runs an even-odd ray cast against a linear ring.
func ringContains(ring *geom.LinearRing, c Coordinates) bool {
	flat := ring.FlatCoords()
	stride := ring.Stride()
	n := len(flat) / stride
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[i*stride], flat[i*stride+1]
		xj, yj := flat[j*stride], flat[j*stride+1]

		if (yi > c.Lat) != (yj > c.Lat) &&
			c.Lng < (xj-xi)*(c.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
