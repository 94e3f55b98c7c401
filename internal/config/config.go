package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Config carries the tunables of the upload pipeline. Values come from an
// optional YAML file with environment variables taking precedence; anything
// left unset falls back to the defaults below.
type Config struct {
	StagingTTL        time.Duration
	StagingMaxEntries int
	MaxUploadBytes    int64
	UploadRatePerMin  int
	UploadBurst       int
}

type fileConfig struct {
	Staging struct {
		TTLMinutes int `yaml:"ttl_minutes"`
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"staging"`
	Upload struct {
		MaxBytes      int64 `yaml:"max_bytes"`
		RatePerMinute int   `yaml:"rate_per_minute"`
		Burst         int   `yaml:"burst"`
	} `yaml:"upload"`
}

func Defaults() Config {
	return Config{
		StagingTTL:        15 * time.Minute,
		StagingMaxEntries: 256,
		MaxUploadBytes:    50 << 20, // 50MB upload cap
		UploadRatePerMin:  30,
		UploadBurst:       10,
	}
}

// Load reads CONFIG_FILE (default config.yaml) if present, then applies env
// overrides. A missing file is not an error; a malformed one is fatal since
// running with half-applied limits is worse than not starting.
func Load() Config {
	cfg := Defaults()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if raw, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			log.Fatalf("Failed to parse %s: %v", path, err)
		}
		applyFile(&cfg, fc)
		log.Printf("Loaded config from %s", path)
	}

	applyEnv(&cfg)
	return cfg
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.Staging.TTLMinutes > 0 {
		cfg.StagingTTL = time.Duration(fc.Staging.TTLMinutes) * time.Minute
	}
	if fc.Staging.MaxEntries > 0 {
		cfg.StagingMaxEntries = fc.Staging.MaxEntries
	}
	if fc.Upload.MaxBytes > 0 {
		cfg.MaxUploadBytes = fc.Upload.MaxBytes
	}
	if fc.Upload.RatePerMinute > 0 {
		cfg.UploadRatePerMin = fc.Upload.RatePerMinute
	}
	if fc.Upload.Burst > 0 {
		cfg.UploadBurst = fc.Upload.Burst
	}
}

func applyEnv(cfg *Config) {
	if v := envInt("STAGING_TTL_MINUTES"); v > 0 {
		cfg.StagingTTL = time.Duration(v) * time.Minute
	}
	if v := envInt("STAGING_MAX_ENTRIES"); v > 0 {
		cfg.StagingMaxEntries = v
	}
	if v := envInt("UPLOAD_MAX_BYTES"); v > 0 {
		cfg.MaxUploadBytes = int64(v)
	}
	if v := envInt("UPLOAD_RATE_PER_MINUTE"); v > 0 {
		cfg.UploadRatePerMin = v
	}
	if v := envInt("UPLOAD_BURST"); v > 0 {
		cfg.UploadBurst = v
	}
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Ignoring non-numeric %s=%q", key, raw)
		return 0
	}
	return n
}
