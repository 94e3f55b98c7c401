package survey_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/LakeCharts/LC-Backend/internal/config"
	"github.com/LakeCharts/LC-Backend/internal/db"
	"github.com/LakeCharts/LC-Backend/internal/partition"
	"github.com/LakeCharts/LC-Backend/internal/survey"
)

// dbAvailable tracks whether the database connection was established.
var dbAvailable bool

// testServer is the shared httptest server for all integration tests.
var testServer *httptest.Server

func TestMain(m *testing.M) {
	// Load .env.local relative to the repo root (two directories up).
	_ = godotenv.Load("../../.env.local")

	if os.Getenv("DATABASE_URL") == "" {
		// No database available — skip all integration tests gracefully.
		os.Exit(m.Run())
	}

	db.Connect()
	dbAvailable = true
	survey.Init()

	grid, err := partition.Load()
	if err != nil {
		fmt.Println("Failed to load grid:", err)
		os.Exit(1)
	}

	cfg := config.Defaults()
	store := survey.NewMemoryStore(cfg.StagingMaxEntries, cfg.StagingTTL)
	handler := survey.NewHandler(grid, store, cfg)

	// Mount survey routes on a chi router, matching production setup.
	r := chi.NewRouter()
	r.Mount("/survey", survey.SetupRoutes(handler))

	testServer = httptest.NewServer(r)
	code := m.Run()
	testServer.Close()
	os.Exit(code)
}

func cleanupTiles(t *testing.T, ids ...string) {
	t.Helper()
	if err := db.DB.Exec(`DELETE FROM survey.tile_features WHERE tile_id = ANY(?)`, pq.Array(ids)).Error; err != nil {
		t.Fatalf("cleanup features: %v", err)
	}
	if err := db.DB.Exec(`DELETE FROM survey.tiles WHERE id = ANY(?)`, pq.Array(ids)).Error; err != nil {
		t.Fatalf("cleanup tiles: %v", err)
	}
}

// aaSquare builds a MultiPolygon square inside tile AA of the embedded grid
// (lon 14.20–14.35, lat 58.00–58.10), offset so multiple features differ.
func aaSquare(offset float64) orb.Geometry {
	cx, cy := 14.25+offset, 58.03
	d := 0.005
	return orb.MultiPolygon{orb.Polygon{orb.Ring{
		{cx - d, cy - d}, {cx + d, cy - d}, {cx + d, cy + d}, {cx - d, cy + d}, {cx - d, cy - d},
	}}}
}

func collection(t *testing.T, geoms ...orb.Geometry) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for i, g := range geoms {
		f := geojson.NewFeature(g)
		f.Properties = geojson.Properties{
			"external_id": fmt.Sprintf("zone-%d", i),
			"group_code":  "depth-5m",
			"description": "test depth zone",
		}
		fc.Append(f)
	}
	raw, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}
	return raw
}

func uploadCollection(t *testing.T, raw []byte) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "survey.geojson")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(raw); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(testServer.URL+"/survey/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func commitUpload(t *testing.T, uploadID string) (*http.Response, []byte) {
	t.Helper()
	payload, _ := json.Marshal(survey.CommitRequest{UploadID: uploadID})
	resp, err := http.Post(testServer.URL+"/survey/commit", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("commit request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func featureRowCount(t *testing.T, tileID string) int64 {
	t.Helper()
	var n int64
	if err := db.DB.Model(&survey.TileFeature{}).Where("tile_id = ?", tileID).Count(&n).Error; err != nil {
		t.Fatalf("count features: %v", err)
	}
	return n
}

func TestUploadCommitLifecycle(t *testing.T) {
	if !dbAvailable {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	cleanupTiles(t, "AA")
	defer cleanupTiles(t, "AA")

	// First cycle: 2 features, brand-new tile.
	resp, body := uploadCollection(t, collection(t, aaSquare(0), aaSquare(0.02)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d: %s", resp.StatusCode, body)
	}
	var up survey.UploadResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if up.DeducedTileID != "AA" || up.IsUpdate || up.FeatureCount != 2 || up.CurrentVersion != nil {
		t.Fatalf("unexpected upload response: %+v", up)
	}

	resp, body = commitUpload(t, up.UploadID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("commit status %d: %s", resp.StatusCode, body)
	}
	var com survey.CommitResponse
	if err := json.Unmarshal(body, &com); err != nil {
		t.Fatalf("decode commit response: %v", err)
	}
	if com.TileID != "AA" || com.Version != 1 || com.FeatureCount != 2 {
		t.Fatalf("unexpected commit response: %+v", com)
	}
	if n := featureRowCount(t, "AA"); n != 2 {
		t.Fatalf("expected 2 feature rows, got %d", n)
	}

	// Commit is one-shot.
	resp, _ = commitUpload(t, up.UploadID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated commit, got %d", resp.StatusCode)
	}

	// Second cycle: 5 features replace the 2.
	resp, body = uploadCollection(t, collection(t,
		aaSquare(0), aaSquare(0.02), aaSquare(0.04), aaSquare(0.06), aaSquare(0.08)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second upload status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode second upload response: %v", err)
	}
	if !up.IsUpdate || up.CurrentVersion == nil || *up.CurrentVersion != 1 || up.FeatureCount != 5 {
		t.Fatalf("unexpected second upload response: %+v", up)
	}

	resp, body = commitUpload(t, up.UploadID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second commit status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &com); err != nil {
		t.Fatalf("decode second commit response: %v", err)
	}
	if com.Version != 2 || com.FeatureCount != 5 {
		t.Fatalf("unexpected second commit response: %+v", com)
	}
	if n := featureRowCount(t, "AA"); n != 5 {
		t.Fatalf("expected prior rows replaced, got %d rows", n)
	}

	// Read paths.
	resp, err := http.Get(testServer.URL + "/survey/tiles/AA")
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}
	var meta survey.TileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatalf("decode tile: %v", err)
	}
	resp.Body.Close()
	if meta.Version != 2 || meta.FeatureCount != 5 {
		t.Fatalf("unexpected tile metadata: %+v", meta)
	}

	// Delete removes metadata and features.
	req, _ := http.NewRequest(http.MethodDelete, testServer.URL+"/survey/tiles/AA", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete tile: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if n := featureRowCount(t, "AA"); n != 0 {
		t.Fatalf("expected 0 feature rows after delete, got %d", n)
	}

	resp, err = http.Get(testServer.URL + "/survey/tiles/AA")
	if err != nil {
		t.Fatalf("get deleted tile: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCommitUnknownSession(t *testing.T) {
	if !dbAvailable {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	resp, _ := commitUpload(t, uuid.New().String())
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}

	resp2, err := http.Post(testServer.URL+"/survey/commit", "application/json",
		bytes.NewReader([]byte(`{"upload_id":"not-a-uuid"}`)))
	if err != nil {
		t.Fatalf("commit request: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp2.StatusCode)
	}
}

func TestUploadRejectionsLeaveNoState(t *testing.T) {
	if !dbAvailable {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	// Features spanning AA and AB must be rejected outright.
	ab := orb.MultiPolygon{orb.Polygon{orb.Ring{
		{14.42, 58.02}, {14.43, 58.02}, {14.43, 58.03}, {14.42, 58.03}, {14.42, 58.02},
	}}}
	resp, body := uploadCollection(t, collection(t, aaSquare(0), ab))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for multi-tile upload, got %d: %s", resp.StatusCode, body)
	}
}

func TestGridEndpoint(t *testing.T) {
	if !dbAvailable {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	resp, err := http.Get(testServer.URL + "/survey/grid")
	if err != nil {
		t.Fatalf("get grid: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("grid is not valid GeoJSON: %v", err)
	}
	if len(fc.Features) != 16 {
		t.Fatalf("expected 16 grid tiles, got %d", len(fc.Features))
	}
}

func TestSessionExpiryBehavesLikeUnknown(t *testing.T) {
	if !dbAvailable {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	// A dedicated short-TTL store, bypassing HTTP: staged then expired
	// sessions must commit as not-found without touching the database.
	store := survey.NewMemoryStore(4, 20*time.Millisecond)
	grid, err := partition.Load()
	if err != nil {
		t.Fatalf("partition.Load: %v", err)
	}
	cfg := config.Defaults()
	cfg.StagingTTL = 20 * time.Millisecond
	h := survey.NewHandler(grid, store, cfg)

	srv := httptest.NewServer(survey.SetupRoutes(h))
	defer srv.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "survey.geojson")
	part.Write(collection(t, aaSquare(0)))
	mw.Close()

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var up survey.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	resp.Body.Close()

	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(survey.CommitRequest{UploadID: up.UploadID})
	resp, err = http.Post(srv.URL+"/commit", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for expired session, got %d", resp.StatusCode)
	}
}
