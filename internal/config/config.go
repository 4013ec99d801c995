package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the runtime configuration of the feed client.
type Config struct {
	APIBaseURL          string
	MediaBaseURL        string
	CacheDSN            string
	PageSize            int
	VisibilityThreshold float64
	HTTPTimeout         time.Duration
	APIRate             float64
	APIBurst            int
	StatusPort          int
	LogLevel            string
	CORSOrigins         []string
	Identity            IdentityConfig
	ObjectStore         ObjectStoreConfig
}

// IdentityConfig seeds the signed-in session for headless runs.
type IdentityConfig struct {
	AccessToken string
	UserID      string
	TokenTTL    time.Duration
}

// ObjectStoreConfig points uploads at an S3-compatible bucket. Staging is
// disabled when Bucket is empty.
type ObjectStoreConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// Enabled reports whether a bucket is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// Load reads configuration from environment variables, applying defaults
// suited to a local backend.
func Load() (Config, error) {
	cfg := Config{
		APIBaseURL:          getString("REELFEED_API_BASE_URL", "http://localhost:8000"),
		MediaBaseURL:        getString("REELFEED_MEDIA_BASE_URL", "http://localhost:8080"),
		CacheDSN:            getString("REELFEED_CACHE_DSN", "sqlite://reelfeed-cache.db"),
		PageSize:            getPositiveInt("REELFEED_PAGE_SIZE", 20),
		VisibilityThreshold: getThreshold("REELFEED_VISIBILITY_THRESHOLD", 0.5),
		HTTPTimeout:         getDuration("REELFEED_HTTP_TIMEOUT", 15*time.Second),
		APIRate:             getFloat("REELFEED_API_RATE", 20),
		APIBurst:            getPositiveInt("REELFEED_API_BURST", 10),
		StatusPort:          getPositiveInt("REELFEED_STATUS_PORT", 8090),
		LogLevel:            getString("REELFEED_LOG_LEVEL", "info"),
		CORSOrigins:         getList("REELFEED_CORS_ORIGINS"),
		Identity: IdentityConfig{
			AccessToken: os.Getenv("REELFEED_ACCESS_TOKEN"),
			UserID:      os.Getenv("REELFEED_USER_ID"),
			TokenTTL:    getDuration("REELFEED_TOKEN_TTL", time.Hour),
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:        os.Getenv("REELFEED_S3_BUCKET"),
			Region:        getString("REELFEED_S3_REGION", "us-east-1"),
			Endpoint:      os.Getenv("REELFEED_S3_ENDPOINT"),
			PublicBaseURL: os.Getenv("REELFEED_S3_PUBLIC_BASE_URL"),
		},
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getPositiveInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getThreshold accepts ratios in (0, 1].
func getThreshold(key string, fallback float64) float64 {
	f := getFloat(key, fallback)
	if f <= 0 || f > 1 {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
