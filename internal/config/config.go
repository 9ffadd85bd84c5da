// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	// DB
	DBHost    string
	DBPort    string
	DBUser    string
	DBPass    string
	DBName    string
	DBSSLMode string

	// Auth
	ServiceExpectedToken string
	AuthServiceURL       string

	// Board API (work tracking)
	BoardAPIURL          string
	BoardAPIToken        string
	BoardAPIVersion      string
	BoardAppURL          string
	BoardID              string
	BoardGroupID         string
	BoardDefaultPersonID int64

	// CRM API (lead creation). Disabled when CRMAPIKey is empty.
	CRMBaseURL  string
	CRMAPIKey   string
	CRMSourceID int
	CRMTags     []string

	// Sync retry policy
	SyncMaxRetries   int
	SyncInitialDelay time.Duration
	SyncMaxDelay     time.Duration
	SyncMultiplier   float64

	// SMTP
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPFromName string

	// Staff alerting
	StaffAlertEmail string

	// R2 Storage (audit archive)
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string

	// CORS
	AllowedOrigins string
}

func Load() *Config {
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load() // optional .env for local
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}

	cfg := &Config{
		ServerPort: port,

		DBHost:    getEnv("DB_HOST", "localhost"),
		DBPort:    getEnv("DB_PORT", "5432"),
		DBUser:    getEnv("DB_USER", "postgres"),
		DBPass:    getEnv("DB_PASS", "postgres"),
		DBName:    getEnv("DB_NAME", "intake_db"),
		DBSSLMode: getEnv("DB_SSLMODE", "disable"),

		ServiceExpectedToken: getEnv("SERVICE_TOKEN", "your-secret-service-token"),
		AuthServiceURL:       getEnv("AUTH_SERVICE_URL", ""),

		BoardAPIURL:          getEnv("BOARD_API_URL", "https://api.monday.com/v2"),
		BoardAPIToken:        os.Getenv("BOARD_API_TOKEN"),
		BoardAPIVersion:      getEnv("BOARD_API_VERSION", "2024-01"),
		BoardAppURL:          getEnv("BOARD_APP_URL", ""),
		BoardID:              os.Getenv("BOARD_ID"),
		BoardGroupID:         getEnv("BOARD_GROUP_ID", "topics"),
		BoardDefaultPersonID: getEnvInt64("BOARD_DEFAULT_PERSON_ID", 0),

		CRMBaseURL:  getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:   os.Getenv("CRM_API_KEY"),
		CRMSourceID: int(getEnvInt64("CRM_SOURCE_ID", 0)),
		CRMTags:     splitList(getEnv("CRM_TAGS", "intake,referral")),

		SyncMaxRetries:   int(getEnvInt64("SYNC_MAX_RETRIES", 3)),
		SyncInitialDelay: getEnvDuration("SYNC_INITIAL_DELAY", 1*time.Second),
		SyncMaxDelay:     getEnvDuration("SYNC_MAX_DELAY", 10*time.Second),
		SyncMultiplier:   getEnvFloat("SYNC_MULTIPLIER", 2),

		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     int(getEnvInt64("SMTP_PORT", 587)),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Community Intake"),

		StaffAlertEmail: getEnv("STAFF_ALERT_EMAIL", ""),

		// R2 Configuration
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		// CORS Configuration
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
	}

	// A missing board credential must fail startup, not surface later as a
	// per-referral sync failure.
	if cfg.BoardAPIToken == "" {
		log.Fatalf("❌ BOARD_API_TOKEN is required")
	}
	if cfg.BoardID == "" {
		log.Fatalf("❌ BOARD_ID is required")
	}
	if cfg.CRMAPIKey != "" && cfg.CRMBaseURL == "" {
		log.Fatalf("❌ CRM_BASE_URL is required when CRM_API_KEY is set")
	}

	return cfg
}

// CRMEnabled reports whether lead sync is configured at all.
func (c *Config) CRMEnabled() bool {
	return c.CRMAPIKey != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("❌ Invalid %s: %v", key, err)
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatalf("❌ Invalid %s: %v", key, err)
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("❌ Invalid %s: %v", key, err)
	}
	return v
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
