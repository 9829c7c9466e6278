package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	WorkerCount   int
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Reconciliation inputs
	PlatformFeePercent float64
	OperatingTimezone  string
	DefaultCategories  string

	// Sync run tuning
	SyncWindowDays          int
	SyncIncrementalOverlap  time.Duration
	SyncGroupConcurrency    int
	SyncSchedule            string
	SyncScheduleConcurrency int

	// Adapter transport
	AdapterTimeout    time.Duration
	AdapterMaxRetries int
	AdapterBackoff    time.Duration
	SquareBaseURL     string
	SquareVersion     string
	BoulevardEndpoint string
	VagaroBaseURL     string

	// Notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SyncQueueURL        string
	SyncJobsTable       string
	UseMemoryQueue      bool
	ArchiveBucket       string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	SyncRateLimitRPS   float64
	SyncRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		WorkerCount:   getEnvAsInt("WORKER_COUNT", 2),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PlatformFeePercent: getEnvAsFloat("PLATFORM_FEE_PERCENT", 7),
		OperatingTimezone:  getEnv("OPERATING_TIMEZONE", "America/New_York"),
		DefaultCategories:  getEnv("DEFAULT_CATEGORIES", "square=Beauty,boulevard=Wellness,vagaro=Salon"),

		SyncWindowDays:          getEnvAsInt("SYNC_WINDOW_DAYS", 14),
		SyncIncrementalOverlap:  getEnvAsDuration("SYNC_INCREMENTAL_OVERLAP", 2*time.Minute),
		SyncGroupConcurrency:    getEnvAsInt("SYNC_GROUP_CONCURRENCY", 4),
		SyncSchedule:            getEnv("SYNC_SCHEDULE", "*/30 * * * *"),
		SyncScheduleConcurrency: getEnvAsInt("SYNC_SCHEDULE_CONCURRENCY", 4),

		AdapterTimeout:    getEnvAsDuration("ADAPTER_TIMEOUT", 20*time.Second),
		AdapterMaxRetries: getEnvAsInt("ADAPTER_MAX_RETRIES", 3),
		AdapterBackoff:    getEnvAsDuration("ADAPTER_BACKOFF", 250*time.Millisecond),
		SquareBaseURL:     getEnv("SQUARE_BASE_URL", "https://connect.squareup.com"),
		SquareVersion:     getEnv("SQUARE_VERSION", "2024-01-18"),
		BoulevardEndpoint: getEnv("BOULEVARD_ENDPOINT", ""),
		VagaroBaseURL:     getEnv("VAGARO_BASE_URL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Same Day"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SyncQueueURL:        getEnv("SYNC_QUEUE_URL", ""),
		SyncJobsTable:       getEnv("SYNC_JOBS_TABLE", "sync_jobs"),
		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		SyncRateLimitRPS:   getEnvAsFloat("SYNC_RATE_LIMIT_RPS", 0.2),
		SyncRateLimitBurst: getEnvAsInt("SYNC_RATE_LIMIT_BURST", 3),
	}
}

// Location resolves the operating timezone used to decide what "today" means.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.OperatingTimezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: load operating timezone %q: %w", name, err)
	}
	return loc, nil
}

// DefaultCategoryTable parses DEFAULT_CATEGORIES ("square=Beauty,boulevard=Wellness") into a
// platform -> category name map. Malformed pairs are skipped.
func (c *Config) DefaultCategoryTable() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.DefaultCategories, ",") {
		platform, name, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		platform = strings.ToLower(strings.TrimSpace(platform))
		name = strings.TrimSpace(name)
		if platform == "" || name == "" {
			continue
		}
		out[platform] = name
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
