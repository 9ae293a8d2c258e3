package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	StaticDir     string
	ShutdownGrace time.Duration
}

// Load reads .env if present, then environment variables, falling back to
// defaults that match the original deployment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          getenv("PORT", "8080"),
		StaticDir:     getenv("STATIC_DIR", "build"),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
