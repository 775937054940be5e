// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir     string // base directory for state files, lock file and the decision ledger
	TargetsPath string // targets.json with asset targets and bot caps
	LogLevel    string
	Port        int
	DevMode     bool

	// Capital controls.
	SafetyReserveUsdc float64 // idle cash that is never spendable
	MinOrderUsdc      float64 // platform minimum tradable notional
	ExcludeIdleCash   bool    // drop idle cash from the weight denominator

	// Concurrency guard.
	LockTimeout    time.Duration
	LockStaleAfter time.Duration // age at which a dead holder's lock file is taken over

	// Mark price feed.
	PriceFeedURL     string
	PriceCacheTTL    time.Duration
	PriceFeedTimeout time.Duration

	// Exchange order endpoint.
	BrokerURL     string
	BrokerTimeout time.Duration

	// Decision ledger retention.
	DecisionRetentionDays int
}

// Load reads configuration from environment variables. A .env file in
// the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QM_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	targetsPath := getEnv("QM_TARGETS_PATH", "")
	if targetsPath == "" {
		targetsPath = filepath.Join(absDataDir, "targets.json")
	}

	cfg := &Config{
		DataDir:               absDataDir,
		TargetsPath:           targetsPath,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		Port:                  getEnvAsInt("QM_PORT", 8010),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		SafetyReserveUsdc:     getEnvAsFloat("QM_SAFETY_RESERVE_USDC", 50),
		MinOrderUsdc:          getEnvAsFloat("QM_MIN_ORDER_USDC", 10),
		ExcludeIdleCash:       getEnvAsBool("QM_EXCLUDE_IDLE_CASH", false),
		LockTimeout:           getEnvAsDuration("QM_LOCK_TIMEOUT", 5*time.Second),
		LockStaleAfter:        getEnvAsDuration("QM_LOCK_STALE_AFTER", 5*time.Minute),
		PriceFeedURL:          getEnv("QM_PRICE_FEED_URL", "http://localhost:8011"),
		PriceCacheTTL:         getEnvAsDuration("QM_PRICE_CACHE_TTL", 5*time.Second),
		PriceFeedTimeout:      getEnvAsDuration("QM_PRICE_FEED_TIMEOUT", 10*time.Second),
		BrokerURL:             getEnv("QM_BROKER_URL", "http://localhost:8012"),
		BrokerTimeout:         getEnvAsDuration("QM_BROKER_TIMEOUT", 30*time.Second),
		DecisionRetentionDays: getEnvAsInt("QM_DECISION_RETENTION_DAYS", 90),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that capital-control parameters make sense.
func (c *Config) Validate() error {
	if c.SafetyReserveUsdc < 0 {
		return fmt.Errorf("safety reserve must not be negative, got %.2f", c.SafetyReserveUsdc)
	}
	if c.MinOrderUsdc <= 0 {
		return fmt.Errorf("minimum order size must be positive, got %.2f", c.MinOrderUsdc)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	// A decision can legitimately hold the lock for one broker call plus
	// several cold price fetches; the stale threshold must sit well past
	// that or a live holder's lock file looks abandoned.
	slowestDecision := c.BrokerTimeout + 8*c.PriceFeedTimeout
	if c.LockStaleAfter < slowestDecision {
		return fmt.Errorf("lock stale-after %s is shorter than a worst-case decision (%s); raise QM_LOCK_STALE_AFTER",
			c.LockStaleAfter, slowestDecision)
	}
	if c.DecisionRetentionDays <= 0 {
		return fmt.Errorf("decision retention must be at least one day, got %d", c.DecisionRetentionDays)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
