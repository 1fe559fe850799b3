package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// DefaultCollection is assigned to line runs whose producing resource
	// carries no collection attribute.
	DefaultCollection string
	// IngestWorkers bounds concurrent span ingestion per export request.
	IngestWorkers int
	LogLevel      string
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Load() Config {
	return Config{
		DefaultCollection: env("TRACE_DEFAULT_COLLECTION", "default"),
		IngestWorkers:     envInt("INGEST_WORKERS", 8),
		LogLevel:          strings.ToLower(env("LOG_LEVEL", "info")),
	}
}
