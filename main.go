package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/LakeCharts/LC-Backend/internal/config"
	"github.com/LakeCharts/LC-Backend/internal/db"
	"github.com/LakeCharts/LC-Backend/internal/metrics"
	"github.com/LakeCharts/LC-Backend/internal/middleware"
	"github.com/LakeCharts/LC-Backend/internal/partition"
	"github.com/LakeCharts/LC-Backend/internal/survey"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg := config.Load()
	db.Connect()
	survey.Init()

	grid, err := partition.Load()
	if err != nil {
		log.Fatal("Failed to load tile grid: ", err)
	}
	log.Printf("Loaded tile grid with %d tiles", grid.Size())

	store := survey.NewStoreFromEnv(cfg)
	handler := survey.NewHandler(grid, store, cfg)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/survey", survey.SetupRoutes(handler))

	fmt.Println("Server listening on port :" + port + "...")

	http.ListenAndServe("0.0.0.0:"+port, r)
}
