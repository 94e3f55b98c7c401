package survey

import (
	"log"

	"github.com/LakeCharts/LC-Backend/internal/db"
)

func Init() {
	// Ensure the survey schema exists
	if err := db.EnsureSchema(db.DB, "survey"); err != nil {
		log.Fatal("Failed to ensure schema survey: ", err)
	}

	// Create required extensions
	if err := db.DB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Fatal("Failed to enable uuid-ossp extension: ", err)
	}
	if err := db.DB.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
		log.Fatal("Failed to enable postgis extension: ", err)
	}

	// Auto-migrate the pipeline tables; parent first so the feature FK can
	// be created in the same pass.
	if err := db.DB.AutoMigrate(
		&TileMetadata{},
		&TileFeature{},
	); err != nil {
		log.Fatal("Failed to auto-migrate survey tables: ", err)
	}

	log.Println("Survey module initialized")
}
