package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string
	AdminUserIDs  []int64

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // Public base URL (required if WebhookMode is true)
	Port        string

	// WebhookSecret is registered as the webhook secret_token and must come back
	// in the X-Telegram-Bot-Api-Secret-Token header of every update request
	WebhookSecret string

	// Record store
	DatabasePath string
	UseMockDB    bool

	// Relay policy
	MaxRelaysPerOwner       int
	DefaultRateLimit        int
	RateWindow              time.Duration
	DefaultMaxMessageLength int
	StepTTL                 time.Duration
	StepSweepInterval       time.Duration
	PlatformTimeout         time.Duration

	// ClickHouse message archive, disabled when ClickHouseHost is empty
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	LogLevel  string
	LogFormat string
}

// ArchiveEnabled reports whether a ClickHouse archive is configured
func (c *Config) ArchiveEnabled() bool {
	return c.ClickHouseHost != ""
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Mother bot token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Admin user IDs (optional)
	if adminIDsStr := os.Getenv("ADMIN_USER_IDS"); adminIDsStr != "" {
		for _, idStr := range strings.Split(adminIDsStr, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID in ADMIN_USER_IDS: %s", idStr)
			}
			config.AdminUserIDs = append(config.AdminUserIDs, id)
		}
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = strings.TrimRight(os.Getenv("WEBHOOK_URL"), "/")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
		config.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
		if config.WebhookSecret == "" {
			return nil, fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_MODE is true")
		}
		if !validSecret(config.WebhookSecret) {
			return nil, fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and -")
		}
	}
	config.Port = getEnv("PORT", "8080")

	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"
	config.DatabasePath = getEnv("DATABASE_PATH", "data/motherbot.db")

	var err error
	if config.MaxRelaysPerOwner, err = intEnv("MAX_RELAYS_PER_OWNER", 3); err != nil {
		return nil, err
	}
	if config.DefaultRateLimit, err = intEnv("DEFAULT_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if config.DefaultMaxMessageLength, err = intEnv("DEFAULT_MAX_MESSAGE_LENGTH", 4000); err != nil {
		return nil, err
	}
	if config.RateWindow, err = durationEnv("RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if config.StepTTL, err = durationEnv("STEP_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if config.StepSweepInterval, err = durationEnv("STEP_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if config.StepSweepInterval <= 0 {
		return nil, fmt.Errorf("STEP_SWEEP_INTERVAL must be positive")
	}
	if config.PlatformTimeout, err = durationEnv("PLATFORM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// ClickHouse configuration (optional archive)
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost != "" {
		if config.ClickHousePort, err = intEnv("CLICKHOUSE_PORT", 9000); err != nil {
			return nil, err
		}
		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	config.LogLevel = getEnv("LOG_LEVEL", "info")
	config.LogFormat = getEnv("LOG_FORMAT", "json")

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

// validSecret reports whether s is accepted by the platform as a webhook secret_token
func validSecret(s string) bool {
	if len(s) == 0 || len(s) > 256 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
