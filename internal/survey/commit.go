package survey

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"

	"github.com/LakeCharts/LC-Backend/internal/db"
)

var (
	// ErrVersionConflict aborts a commit when another commit bumped the tile
	// version between the pre-read and the transaction.
	ErrVersionConflict = errors.New("tile version changed during commit")
)

// CommitSession atomically replaces the tile's feature set with the session's
// features and bumps the version. Metadata is written before features so the
// foreign key from feature rows is satisfiable even for a brand-new tile.
// Any failure rolls the whole transaction back; prior state survives intact.
func CommitSession(ctx context.Context, session *UploadSession) (*TileMetadata, error) {
	var current TileMetadata
	exists := true
	err := db.DB.WithContext(ctx).First(&current, "id = ?", session.TileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", session.TileID, err)
	}

	count := len(session.Features.Features)

	var updated TileMetadata
	err = db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if exists {
			// Conditional on the version we read: a racing commit that got in
			// first makes this a no-op and we bail instead of double-bumping.
			res := tx.Model(&TileMetadata{}).
				Where("id = ? AND version = ?", session.TileID, current.Version).
				Updates(map[string]interface{}{
					"feature_count": count,
					"version":       current.Version + 1,
				})
			if res.Error != nil {
				return fmt.Errorf("update tile %s: %w", session.TileID, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		} else {
			meta := TileMetadata{ID: session.TileID, FeatureCount: count, Version: 1}
			if err := tx.Create(&meta).Error; err != nil {
				// A racing first commit loses here on the primary key.
				return fmt.Errorf("create tile %s: %w", session.TileID, err)
			}
		}

		if err := tx.Delete(&TileFeature{}, "tile_id = ?", session.TileID).Error; err != nil {
			return fmt.Errorf("clear features for tile %s: %w", session.TileID, err)
		}

		for i, f := range session.Features.Features {
			row, err := featureRow(session.TileID, f)
			if err != nil {
				return fmt.Errorf("feature %d: %w", i, err)
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("insert feature %d for tile %s: %w", i, session.TileID, err)
			}
		}

		return tx.First(&updated, "id = ?", session.TileID).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func featureRow(tileID string, f *geojson.Feature) (*TileFeature, error) {
	var mp orb.MultiPolygon
	switch g := f.Geometry.(type) {
	case orb.MultiPolygon:
		mp = g
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	default:
		return nil, fmt.Errorf("geometry is %T, expected MultiPolygon", f.Geometry)
	}

	return &TileFeature{
		TileID:      tileID,
		ExternalID:  stringProp(f.Properties, "external_id", "externalId"),
		GroupCode:   stringProp(f.Properties, "group_code", "groupCode"),
		Description: stringProp(f.Properties, "description"),
		Geom:        GeoMultiPolygon{MultiPolygon: mp},
	}, nil
}

// stringProp returns the first present non-empty string property among the
// given keys. Survey exports alternate between snake and camel case.
func stringProp(props geojson.Properties, keys ...string) *string {
	for _, key := range keys {
		if v, ok := props[key].(string); ok && v != "" {
			return &v
		}
	}
	return nil
}
