package partition

import (
	_ "embed"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// grid.geojson is the fixed survey grid for the lake. It ships with the
// binary and is never edited at runtime; regenerating it is a deploy.
//
//go:embed grid.geojson
var gridData []byte

// TileDefinition is one named cell of the survey grid. The boundary is a
// single exterior ring in lon/lat (EPSG:4326).
type TileDefinition struct {
	ID       string
	Boundary orb.Polygon
}

// Partition is the full set of tile boundaries, loaded once at startup and
// passed read-only to everything that needs tile matching.
type Partition struct {
	tiles []TileDefinition
}

// Load parses the embedded grid file.
func Load() (*Partition, error) {
	fc, err := geojson.UnmarshalFeatureCollection(gridData)
	if err != nil {
		return nil, fmt.Errorf("parse embedded grid: %w", err)
	}
	return FromFeatureCollection(fc)
}

// FromFeatureCollection builds a Partition from a GeoJSON feature collection.
// Each feature must carry a unique string "id" property and a Polygon
// boundary (a single-polygon MultiPolygon is accepted and unwrapped).
func FromFeatureCollection(fc *geojson.FeatureCollection) (*Partition, error) {
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("grid has no tiles")
	}

	seen := make(map[string]struct{}, len(fc.Features))
	tiles := make([]TileDefinition, 0, len(fc.Features))

	for i, f := range fc.Features {
		id, ok := f.Properties["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("grid tile %d has no id property", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("grid tile id %q is duplicated", id)
		}

		var boundary orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			boundary = g
		case orb.MultiPolygon:
			if len(g) != 1 {
				return nil, fmt.Errorf("grid tile %q boundary must be a single polygon", id)
			}
			boundary = g[0]
		default:
			return nil, fmt.Errorf("grid tile %q has non-polygonal boundary %T", id, f.Geometry)
		}
		if len(boundary) == 0 || len(boundary[0]) < 4 {
			return nil, fmt.Errorf("grid tile %q boundary ring is degenerate", id)
		}

		seen[id] = struct{}{}
		tiles = append(tiles, TileDefinition{ID: id, Boundary: boundary})
	}

	return &Partition{tiles: tiles}, nil
}

// Size reports the number of tiles in the grid.
func (p *Partition) Size() int {
	return len(p.tiles)
}

// Tiles returns a copy of the tile list.
func (p *Partition) Tiles() []TileDefinition {
	out := make([]TileDefinition, len(p.tiles))
	copy(out, p.tiles)
	return out
}

// FeatureCollection renders the grid back to GeoJSON for map preview clients.
func (p *Partition) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range p.tiles {
		f := geojson.NewFeature(t.Boundary)
		f.Properties = geojson.Properties{"id": t.ID}
		fc.Append(f)
	}
	return fc
}
