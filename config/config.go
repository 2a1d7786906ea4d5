// Package config reads harness settings from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendLocal = "local"
	BackendMinIO = "minio"
)

// Config ...
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MSAFallback  string
	MSACacheSize int
	Retries      int
	RetryDelay   time.Duration
	LogLevel     string
	LogFormat    string

	RedisURI     string
	RedisChannel string

	Artifact ArtifactConfig
}

// ArtifactConfig selects where artifacts are mirrored besides the
// output directory.
type ArtifactConfig struct {
	Backend   string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Mirrored reports whether artifacts should also go to object storage.
func (a ArtifactConfig) Mirrored() bool {
	return strings.EqualFold(a.Backend, BackendMinIO)
}

// FromEnv ...
func FromEnv() Config {
	_ = godotenv.Load()
	return Config{
		BaseURL:      getenv("FOLDY_BASE_URL", "http://localhost:8000"),
		Timeout:      getenvDuration("FOLDY_TIMEOUT", 1200*time.Second),
		MSAFallback:  getenv("FOLDY_MSA_FALLBACK", ""),
		MSACacheSize: getenvInt("FOLDY_MSA_CACHE_SIZE", 256),
		Retries:      getenvInt("FOLDY_RETRIES", 0),
		RetryDelay:   getenvDuration("FOLDY_RETRY_DELAY", 5*time.Second),
		LogLevel:     getenv("FOLDY_LOG_LEVEL", "info"),
		LogFormat:    getenv("FOLDY_LOG_FORMAT", "text"),
		RedisURI:     getenv("REDIS_URI", ""),
		RedisChannel: getenv("REDIS_CHANNEL", "foldy"),
		Artifact: ArtifactConfig{
			Backend:   getenv("FOLDY_ARTIFACT_BACKEND", BackendLocal),
			Endpoint:  getenv("FOLDY_MINIO_ENDPOINT", ""),
			Region:    getenv("FOLDY_MINIO_REGION", "us-east-1"),
			AccessKey: firstNonEmpty(os.Getenv("FOLDY_MINIO_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
			SecretKey: firstNonEmpty(os.Getenv("FOLDY_MINIO_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
			Bucket:    getenv("FOLDY_MINIO_BUCKET", "foldy-bench"),
			Prefix:    getenv("FOLDY_MINIO_PREFIX", ""),
			UseSSL:    getenvBool("FOLDY_MINIO_USE_SSL", false),
		},
	}
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getenvDuration accepts Go durations ("20m") and bare seconds ("1200").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
