package survey

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const srid = 4326

// GeoMultiPolygon maps an orb.MultiPolygon onto a PostGIS geometry column.
// Writes go through ST_GeomFromWKB with hex-encoded WKB; reads accept the
// hex EWKB that PostGIS returns for a plain geometry select.
type GeoMultiPolygon struct {
	orb.MultiPolygon
}

func (g *GeoMultiPolygon) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		g.MultiPolygon = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported geometry source: %T", value)
	}
	if len(data) == 0 {
		g.MultiPolygon = nil
		return nil
	}

	if decoded, err := hex.DecodeString(string(data)); err == nil {
		data = decoded
	}
	geom, _, err := ewkb.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}

	switch m := geom.(type) {
	case orb.MultiPolygon:
		g.MultiPolygon = m
	case orb.Polygon:
		g.MultiPolygon = orb.MultiPolygon{m}
	default:
		return fmt.Errorf("geometry column holds %T, expected MultiPolygon", geom)
	}
	return nil
}

func (g GeoMultiPolygon) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	data, err := wkb.Marshal(g.MultiPolygon)
	if err != nil {
		db.AddError(fmt.Errorf("encode geometry: %w", err))
		return clause.Expr{SQL: "NULL"}
	}
	return clause.Expr{
		SQL:  "ST_GeomFromWKB(decode(?, 'hex'), ?)",
		Vars: []interface{}{hex.EncodeToString(data), srid},
	}
}

func (g GeoMultiPolygon) GormDataType() string {
	return fmt.Sprintf("geometry(MultiPolygon,%d)", srid)
}

func (g GeoMultiPolygon) MarshalJSON() ([]byte, error) {
	return geojson.NewGeometry(g.MultiPolygon).MarshalJSON()
}

func (g *GeoMultiPolygon) UnmarshalJSON(data []byte) error {
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return err
	}
	mp, ok := geom.Geometry().(orb.MultiPolygon)
	if !ok {
		return fmt.Errorf("geometry is %s, expected MultiPolygon", geom.Type)
	}
	g.MultiPolygon = mp
	return nil
}

// TileMetadata is the committed state of one grid tile. A row exists only
// after the first successful commit; version increments on every replace.
type TileMetadata struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	FeatureCount int       `gorm:"not null" json:"feature_count"`
	Version      int       `gorm:"not null" json:"version"`
	CreatedAt    time.Time `json:"created"`
	UpdatedAt    time.Time `json:"last_updated"`
}

func (TileMetadata) TableName() string {
	return "survey.tiles"
}

// TileFeature is one depth-zone polygon of a tile's committed set. The whole
// set is deleted and reinserted on every commit, never patched in place.
type TileFeature struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TileID      string          `gorm:"not null;index" json:"tile_id"`
	ExternalID  *string         `json:"external_id,omitempty"`
	GroupCode   *string         `json:"group_code,omitempty"`
	Description *string         `json:"description,omitempty"`
	Geom        GeoMultiPolygon `gorm:"type:geometry(MultiPolygon,4326)" json:"geometry"`

	Tile *TileMetadata `gorm:"foreignKey:TileID;references:ID" json:"-"`
}

func (TileFeature) TableName() string {
	return "survey.tile_features"
}

// UploadResponse is the summary returned after a collection validates and is
// staged for confirmation.
type UploadResponse struct {
	UploadID       string `json:"upload_id"`
	DeducedTileID  string `json:"deduced_tile_id"`
	IsUpdate       bool   `json:"is_update"`
	FeatureCount   int    `json:"feature_count"`
	CurrentVersion *int   `json:"current_version,omitempty"`
	Message        string `json:"message"`
}

type CommitRequest struct {
	UploadID string `json:"upload_id"`
}

type CommitResponse struct {
	Message      string `json:"message"`
	TileID       string `json:"tile_id"`
	Version      int    `json:"version"`
	FeatureCount int    `json:"feature_count"`
}
