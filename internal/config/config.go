package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration, sourced from the environment with an
// optional .env file.
type Config struct {
	DBPath        string
	ListenAddr    string
	BatchInterval time.Duration
	LogLevel      string
	LogFormat     string
}

// Load reads configuration from the environment. A missing .env file is not
// an error; system environment variables always apply.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBPath:        getenv("ROADMETRICS_DB", "road_metrics.db"),
		ListenAddr:    getenv("ROADMETRICS_ADDR", ":8080"),
		BatchInterval: getduration("ROADMETRICS_BATCH_INTERVAL", time.Hour),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "console"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
