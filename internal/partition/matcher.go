package partition

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Locate finds the tile that contains the given geometry's representative
// point. Boundaries are assumed disjoint, so the first containing tile is the
// only one; if they ever overlapped this would silently pick the first.
//
// The representative point is chosen in two steps: a point on the geometry's
// surface when one can be computed, otherwise the plain centroid. Degenerate
// geometry produces no match rather than an error.
func (p *Partition) Locate(geom orb.Geometry) (string, bool) {
	pt, ok := representativePoint(geom)
	if !ok {
		return "", false
	}
	for _, t := range p.tiles {
		if planar.PolygonContains(t.Boundary, pt) {
			return t.ID, true
		}
	}
	return "", false
}

func representativePoint(geom orb.Geometry) (orb.Point, bool) {
	if isEmpty(geom) {
		return orb.Point{}, false
	}
	if pt, ok := pointOnSurface(geom); ok {
		return pt, true
	}
	centroid, _ := planar.CentroidArea(geom)
	return centroid, true
}

// pointOnSurface returns a point guaranteed to lie on the geometry. The
// centroid qualifies whenever the shape contains it; for concave shapes where
// it falls outside, midpoints of chords across the largest exterior ring are
// probed instead.
func pointOnSurface(geom orb.Geometry) (orb.Point, bool) {
	centroid, _ := planar.CentroidArea(geom)
	if containsPoint(geom, centroid) {
		return centroid, true
	}

	ring := largestExteriorRing(geom)
	if len(ring) < 4 {
		return orb.Point{}, false
	}
	n := len(ring) - 1 // ring is closed, last vertex repeats the first
	for i := 0; i < n; i++ {
		opposite := ring[(i+n/2)%n]
		mid := orb.Point{(ring[i][0] + opposite[0]) / 2, (ring[i][1] + opposite[1]) / 2}
		if containsPoint(geom, mid) {
			return mid, true
		}
	}
	return orb.Point{}, false
}

func containsPoint(geom orb.Geometry, pt orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	default:
		return false
	}
}

func largestExteriorRing(geom orb.Geometry) orb.Ring {
	switch g := geom.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		return g[0]
	case orb.MultiPolygon:
		var best orb.Ring
		bestArea := 0.0
		for _, poly := range g {
			if len(poly) == 0 {
				continue
			}
			if a := math.Abs(planar.Area(poly[0])); a >= bestArea {
				best, bestArea = poly[0], a
			}
		}
		return best
	default:
		return nil
	}
}

func isEmpty(geom orb.Geometry) bool {
	switch g := geom.(type) {
	case nil:
		return true
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		if len(g) == 0 {
			return true
		}
		for _, poly := range g {
			if len(poly) > 0 && len(poly[0]) > 0 {
				return false
			}
		}
		return true
	default:
		return false
	}
}
