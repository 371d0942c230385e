package config

import (
	"os"
	"strconv"
	"time"
)

var (
	// Google OAuth settings
	GoogleClientID     = os.Getenv("GOOGLE_CLIENT_ID")
	GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	GoogleRedirectURI  = os.Getenv("GOOGLE_REDIRECT_URI")

	// Dropbox OAuth settings
	DropboxClientID     = os.Getenv("DROPBOX_CLIENT_ID")
	DropboxClientSecret = os.Getenv("DROPBOX_CLIENT_SECRET")
	DropboxRedirectURI  = os.Getenv("DROPBOX_REDIRECT_URI")

	// Frontend redirect target for OAuth callbacks
	FrontendURL = getEnvWithDefault("FRONTEND_URL", "http://localhost:5173")

	// Database settings
	DBType     = getEnvWithDefault("DB_TYPE", "sqlite")
	DBPath     = getEnvWithDefault("DB_PATH", "skydeck.db")
	DBHost     = getEnvWithDefault("DB_HOST", "localhost")
	DBPort     = getEnvWithDefault("DB_PORT", "5432")
	DBUser     = os.Getenv("DB_USER")
	DBPassword = os.Getenv("DB_PASSWORD")
	DBName     = getEnvWithDefault("DB_NAME", "skydeck")

	// Cache (Valkey/Redis) settings
	ValkeyHost    = getEnvWithDefault("VALKEY_HOST", "localhost")
	ValkeyPort    = getEnvInt("VALKEY_PORT", 6379)
	CacheDisabled = getEnvWithDefault("CACHE_DISABLED", "false") == "true"

	// Provider call settings
	ProviderCallTimeout = getEnvDuration("PROVIDER_CALL_TIMEOUT", 30*time.Second)
	ListPageSize        = int64(getEnvInt("LIST_PAGE_SIZE", 100))
	SearchPageSize      = int64(getEnvInt("SEARCH_PAGE_SIZE", 50))

	// Environment mode
	Env = getEnvWithDefault("APP_ENV", "development")
)

// GoogleScopes are requested on every Google OAuth consent.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// DropboxScopes are requested on every Dropbox OAuth consent.
const DropboxScopes = "files.metadata.read files.content.read files.content.write account_info.read"

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
