package survey

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/LakeCharts/LC-Backend/internal/partition"
)

// ValidationError is a client-caused rejection of an uploaded collection.
// Handlers surface its message verbatim with a 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateCollection parses an uploaded GeoJSON document and checks that it
// is a non-empty feature collection of MultiPolygon features that all fall
// inside the same grid tile. It returns the deduced tile id and the parsed
// collection; it touches neither the database nor the staging store.
func ValidateCollection(raw []byte, p *partition.Partition) (string, *geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return "", nil, validationErrorf("file is not a valid GeoJSON feature collection: %v", err)
	}
	if len(fc.Features) == 0 {
		return "", nil, validationErrorf("feature collection contains no features")
	}

	tileID := ""
	for i, f := range fc.Features {
		if f == nil {
			return "", nil, validationErrorf("feature %d is not a well-formed feature", i)
		}
		if f.Geometry == nil {
			return "", nil, validationErrorf("feature %d has no geometry", i)
		}
		if gt := f.Geometry.GeoJSONType(); gt != "MultiPolygon" {
			return "", nil, validationErrorf("feature %d has geometry type %s, only MultiPolygon is accepted", i, gt)
		}

		id, ok := p.Locate(f.Geometry)
		if !ok {
			return "", nil, validationErrorf("feature %d does not fall inside any grid tile", i)
		}
		if tileID == "" {
			tileID = id
			continue
		}
		if id != tileID {
			return "", nil, validationErrorf(
				"all features must belong to the same tile: feature %d is in %s, earlier features are in %s", i, id, tileID)
		}
	}

	return tileID, fc, nil
}
