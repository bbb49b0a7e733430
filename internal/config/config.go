// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// PublicNetworkPassphrase identifies the Stellar public network. The
// passphrase is informational for this service; it is reported on the
// status endpoint so operators can confirm which network the configured
// Horizon instance belongs to.
const PublicNetworkPassphrase = "Public Global Stellar Network ; September 2015"

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	Port              int
	DevMode           bool
	LogLevel          string
	HorizonURL        string
	NetworkPassphrase string

	// Pathfinding bounds. MaxHops and MaxRoutes are defaults for requests
	// that omit them; MaxRoutesGlobal caps what any single request may ask
	// for.
	MaxHops         int
	MaxRoutes       int
	MaxRoutesGlobal int

	// OrderbookMinDepth is the minimum top-of-book ask volume a market must
	// show during discovery before it contributes a graph edge.
	OrderbookMinDepth float64

	// SkipDEXDiscovery builds the graph from bridge and hub edges only.
	// Useful on networks without Horizon orderbook access.
	SkipDEXDiscovery bool

	// QuoteTTLSeconds controls how long an issued quote stays active.
	QuoteTTLSeconds int

	// Cron schedules (robfig/cron syntax, "@every ..." accepted).
	RefreshSchedule    string
	RebuildSchedule    string
	ProbeSchedule      string
	CacheSweepSchedule string

	Backup *BackupConfig
}

// BackupConfig holds registry snapshot backup configuration. Backups are
// uploaded to any S3-compatible store (AWS S3, Cloudflare R2, MinIO).
type BackupConfig struct {
	Enabled         bool
	Schedule        string
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	KeepCount       int // minimum number of snapshots retained during rotation
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ASTROLABE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	maxRoutesGlobal := clampInt(getEnvAsInt("MAX_ROUTES_GLOBAL", 20), 1, 20)

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("PORT", 8080),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HorizonURL:        getEnv("HORIZON_URL", "https://horizon.stellar.org"),
		NetworkPassphrase: getEnv("NETWORK_PASSPHRASE", PublicNetworkPassphrase),

		MaxHops:           clampInt(getEnvAsInt("MAX_HOPS", 4), 1, 6),
		MaxRoutes:         clampInt(getEnvAsInt("MAX_ROUTES", 5), 1, maxRoutesGlobal),
		MaxRoutesGlobal:   maxRoutesGlobal,
		OrderbookMinDepth: getEnvAsFloat("ORDERBOOK_MIN_DEPTH", 0.01),
		SkipDEXDiscovery:  getEnvAsBool("SKIP_DEX_DISCOVERY", false),
		QuoteTTLSeconds:   getEnvAsInt("QUOTE_TTL_SECONDS", 300),

		RefreshSchedule:    getEnv("GRAPH_REFRESH_SCHEDULE", "@every 5m"),
		RebuildSchedule:    getEnv("GRAPH_REBUILD_SCHEDULE", "@every 30m"),
		ProbeSchedule:      getEnv("ANCHOR_PROBE_SCHEDULE", "@every 10m"),
		CacheSweepSchedule: getEnv("CACHE_SWEEP_SCHEDULE", "@every 1m"),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.HorizonURL == "" {
		return fmt.Errorf("HORIZON_URL must not be empty")
	}
	if c.Backup != nil && c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("S3_BUCKET required when backups are enabled")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("S3 credentials required when backups are enabled")
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// loadBackupConfig loads snapshot backup configuration. Backups stay
// disabled unless credentials and a bucket are provided.
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Schedule:        getEnv("BACKUP_SCHEDULE", "@daily"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		Region:          getEnv("S3_REGION", "auto"),
		Bucket:          getEnv("S3_BUCKET", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		KeepCount:       getEnvAsInt("BACKUP_KEEP_COUNT", 3),
	}
}
