package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// Serial numbering for inventory units.
	SerialPrefix string
	SerialWidth  int
	SerialStart  int64

	// ReceiveMode controls the status new units get when an invoice is
	// approved: "transit" puts them in in_transit until explicitly
	// received, "available" makes them sellable immediately.
	ReceiveMode string

	Shopify ShopifyConfig

	SyncWorkers     int
	SyncMaxAttempts int
}

// ShopifyConfig holds Admin API credentials and webhook settings.
type ShopifyConfig struct {
	StoreDomain   string
	APIVersion    string
	AccessToken   string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

const (
	ReceiveModeTransit   = "transit"
	ReceiveModeAvailable = "available"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "chainline"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "chainline"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		SerialPrefix: getenv("SERIAL_PREFIX", "BK"),
		SerialWidth:  getenvInt("SERIAL_WIDTH", 5),
		SerialStart:  getenvInt64("SERIAL_START", 1),

		ReceiveMode: normalizeReceiveMode(getenv("RECEIVE_MODE", ReceiveModeTransit)),

		Shopify: ShopifyConfig{
			StoreDomain:   strings.TrimSpace(getenv("SHOPIFY_STORE_DOMAIN", "")),
			APIVersion:    getenv("SHOPIFY_API_VERSION", "2024-10"),
			AccessToken:   strings.TrimSpace(getenv("SHOPIFY_ACCESS_TOKEN", "")),
			ClientID:      strings.TrimSpace(getenv("SHOPIFY_CLIENT_ID", "")),
			ClientSecret:  strings.TrimSpace(getenv("SHOPIFY_CLIENT_SECRET", "")),
			WebhookSecret: strings.TrimSpace(getenv("SHOPIFY_WEBHOOK_SECRET", "")),
		},

		SyncWorkers:     getenvInt("SYNC_WORKERS", 2),
		SyncMaxAttempts: getenvInt("SYNC_MAX_ATTEMPTS", 3),
	}
}

func normalizeReceiveMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ReceiveModeAvailable:
		return ReceiveModeAvailable
	default:
		return ReceiveModeTransit
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
