package survey

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/LakeCharts/LC-Backend/internal/config"
	"github.com/LakeCharts/LC-Backend/internal/db"
	"github.com/LakeCharts/LC-Backend/internal/metrics"
	"github.com/LakeCharts/LC-Backend/internal/partition"
)

// Handler carries the pipeline's shared read-only collaborators: the static
// grid, the staging store and the service config.
type Handler struct {
	Partition *partition.Partition
	Store     Store
	Config    config.Config
}

func NewHandler(p *partition.Partition, store Store, cfg config.Config) *Handler {
	return &Handler{Partition: p, Store: store, Config: cfg}
}

// Upload validates a multipart GeoJSON upload and stages it for confirmation.
// Nothing is written to the database here.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		metrics.UploadRejectedTotal.WithLabelValues("no_file").Inc()
		http.Error(w, "Upload must be multipart with a single 'file' field within the size limit", http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		metrics.UploadRejectedTotal.WithLabelValues("unreadable").Inc()
		http.Error(w, "Failed to read uploaded file (too large?)", http.StatusBadRequest)
		return
	}

	tileID, fc, err := ValidateCollection(raw, h.Partition)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.UploadRejectedTotal.WithLabelValues("validation").Inc()
			http.Error(w, verr.Reason, http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to validate upload", http.StatusInternalServerError)
		return
	}

	var currentVersion *int
	isUpdate := false
	var meta TileMetadata
	err = db.DB.WithContext(r.Context()).First(&meta, "id = ?", tileID).Error
	switch {
	case err == nil:
		isUpdate = true
		currentVersion = &meta.Version
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first-ever upload for this tile
	default:
		http.Error(w, "Failed to look up tile", http.StatusInternalServerError)
		return
	}

	session := &UploadSession{
		UploadID:  uuid.New().String(),
		TileID:    tileID,
		Features:  fc,
		ExpiresAt: time.Now().Add(h.Config.StagingTTL),
	}
	if err := h.Store.Put(r.Context(), session); err != nil {
		log.Printf("Failed to stage upload for tile %s: %v", tileID, err)
		http.Error(w, "Failed to stage upload", http.StatusInternalServerError)
		return
	}
	metrics.UploadsTotal.Inc()

	message := "Validated " + plural(len(fc.Features)) + " for tile " + tileID + "; confirm to create the tile"
	if isUpdate {
		message = "Validated " + plural(len(fc.Features)) + " for tile " + tileID + "; confirm to replace the current feature set"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UploadResponse{
		UploadID:       session.UploadID,
		DeducedTileID:  tileID,
		IsUpdate:       isUpdate,
		FeatureCount:   len(fc.Features),
		CurrentVersion: currentVersion,
		Message:        message,
	})
}

// Commit consumes a staged session and runs the replace-and-version
// transaction. A session commits at most once.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(req.UploadID); err != nil {
		http.Error(w, "Invalid upload id", http.StatusBadRequest)
		return
	}

	session, ok := h.Store.Get(r.Context(), req.UploadID)
	if !ok {
		metrics.StagedSessionsMissTotal.Inc()
		http.Error(w, "Upload session not found or expired", http.StatusNotFound)
		return
	}

	start := time.Now()
	meta, err := CommitSession(r.Context(), session)
	if err != nil {
		metrics.CommitFailuresTotal.Inc()
		log.Printf("Commit failed for tile %s (upload %s): %v", session.TileID, req.UploadID, err)
		http.Error(w, "Failed to commit upload", http.StatusInternalServerError)
		return
	}
	metrics.CommitDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	metrics.CommitsTotal.Inc()

	// One-shot: a second commit of the same id now 404s.
	h.Store.Delete(r.Context(), req.UploadID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CommitResponse{
		Message:      "Committed " + plural(meta.FeatureCount) + " to tile " + meta.ID,
		TileID:       meta.ID,
		Version:      meta.Version,
		FeatureCount: meta.FeatureCount,
	})
}

// ListTiles returns metadata for every committed tile, ordered by id.
func (h *Handler) ListTiles(w http.ResponseWriter, r *http.Request) {
	tiles := []TileMetadata{}
	if err := db.DB.WithContext(r.Context()).Order("id asc").Find(&tiles).Error; err != nil {
		http.Error(w, "Failed to list tiles", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tiles)
}

func (h *Handler) GetTile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var meta TileMetadata
	if err := db.DB.WithContext(r.Context()).First(&meta, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Tile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load tile", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

// DeleteTile removes a tile's feature rows and its metadata in one
// transaction, children first.
func (h *Handler) DeleteTile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var meta TileMetadata
	if err := db.DB.WithContext(r.Context()).First(&meta, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Tile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load tile", http.StatusInternalServerError)
		return
	}

	tx := db.DB.WithContext(r.Context()).Begin()
	if tx.Error != nil {
		http.Error(w, "Failed to start transaction", http.StatusInternalServerError)
		return
	}

	if err := tx.Delete(&TileFeature{}, "tile_id = ?", id).Error; err != nil {
		tx.Rollback()
		log.Printf("Failed to delete features for tile %s: %v", id, err)
		http.Error(w, "Failed to delete tile", http.StatusInternalServerError)
		return
	}
	if err := tx.Delete(&TileMetadata{}, "id = ?", id).Error; err != nil {
		tx.Rollback()
		log.Printf("Failed to delete tile %s: %v", id, err)
		http.Error(w, "Failed to delete tile", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Printf("Failed to commit delete of tile %s: %v", id, err)
		http.Error(w, "Failed to delete tile", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Grid serves the static partition as GeoJSON for the map preview.
func (h *Handler) Grid(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(h.Partition.FeatureCollection())
}

func plural(n int) string {
	if n == 1 {
		return "1 feature"
	}
	return fmt.Sprintf("%d features", n)
}
