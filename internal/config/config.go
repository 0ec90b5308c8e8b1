// Package config loads the explicit, environment-addressable settings
// the server needs at startup. There is no reflection-driven binding:
// every field is read by name in Load.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-addressable server option. Zero
// values are never used directly; Load always applies the documented
// defaults.
type Config struct {
	// LegacyDir is the directory scanned once at startup for legacy
	// JSON session/game files to import. Empty disables migration.
	LegacyDir string
	// DBPath is the sqlite3 database file path.
	DBPath string
	// AnalysisDepth is the search depth used by the review worker.
	AnalysisDepth int
	// ReviewWorkers is the number of review worker goroutines, each
	// with its own engine subprocess.
	ReviewWorkers int
	// BroadcastCapacity is the per-session broadcast channel buffer size.
	BroadcastCapacity int
	// ReviewQueueCapacity is the bounded review job mailbox size.
	ReviewQueueCapacity int
	// EnginePath overrides automatic engine binary discovery.
	EnginePath string
	// HTTPAddr is the address the HTTP front door listens on.
	HTTPAddr string
}

const (
	defaultAnalysisDepth       = 18
	defaultReviewWorkers       = 1
	defaultBroadcastCapacity   = 100
	defaultReviewQueueCapacity = 64
	defaultHTTPAddr            = ":8080"
	defaultDBPath              = "chesstty.db"
)

// Load reads configuration from the process environment, having first
// loaded a ".env" file if one is present (missing files are not an
// error). All reads are explicit; nothing is derived via reflection.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		LegacyDir:           os.Getenv("CHESSTTY_LEGACY_DIR"),
		DBPath:              envOrDefault("CHESSTTY_DB_PATH", defaultDBPath),
		EnginePath:          os.Getenv("CHESSTTY_ENGINE_PATH"),
		HTTPAddr:            envOrDefault("CHESSTTY_HTTP_ADDR", defaultHTTPAddr),
		AnalysisDepth:       defaultAnalysisDepth,
		ReviewWorkers:       defaultReviewWorkers,
		BroadcastCapacity:   defaultBroadcastCapacity,
		ReviewQueueCapacity: defaultReviewQueueCapacity,
	}

	var err error
	if cfg.AnalysisDepth, err = envIntOrDefault("CHESSTTY_ANALYSIS_DEPTH", defaultAnalysisDepth); err != nil {
		return Config{}, err
	}
	if cfg.ReviewWorkers, err = envIntOrDefault("CHESSTTY_REVIEW_WORKERS", defaultReviewWorkers); err != nil {
		return Config{}, err
	}
	if cfg.BroadcastCapacity, err = envIntOrDefault("CHESSTTY_BROADCAST_CAPACITY", defaultBroadcastCapacity); err != nil {
		return Config{}, err
	}
	if cfg.ReviewQueueCapacity, err = envIntOrDefault("CHESSTTY_REVIEW_QUEUE_CAPACITY", defaultReviewQueueCapacity); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return n, nil
}
