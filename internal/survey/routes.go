package survey

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LakeCharts/LC-Backend/internal/middleware"
)

func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Upload pipeline
	r.With(middleware.RateLimit(h.Config.UploadRatePerMin, h.Config.UploadBurst)).
		Post("/upload", h.Upload)
	r.Post("/commit", h.Commit)

	// Registry read/delete paths
	r.Get("/tiles", h.ListTiles)
	r.Get("/tiles/{id}", h.GetTile)
	r.Delete("/tiles/{id}", h.DeleteTile)

	// Static grid for the map preview
	r.Get("/grid", h.Grid)

	return r
}
