// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// QuickBooks environments
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// Config is the root application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	QuickBooks QuickBooksConfig
	Auth       AuthConfig
	Sync       SyncConfig
	LogLevel   string `validate:"oneof=trace debug info warn error"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port    string `validate:"required,numeric"`
	Timeout int    `validate:"min=1"`
}

// DatabaseConfig selects the gorm dialect and pool sizing
type DatabaseConfig struct {
	Driver          string `validate:"oneof=postgres mysql sqlite"`
	DSN             string `validate:"required"`
	MaxOpenConns    int    `validate:"min=0"`
	MaxIdleConns    int    `validate:"min=0"`
	ConnMaxLifetime time.Duration
	Tracing         bool
}

// RedisConfig holds token cache connection settings. No addresses disables the cache.
type RedisConfig struct {
	Addresses []string
	Password  string
	DB        int `validate:"min=0"`
	KeyPrefix string
	EnableTLS bool
}

// Enabled reports whether a Redis address was configured
func (r RedisConfig) Enabled() bool {
	return len(r.Addresses) > 0
}

// QuickBooksConfig holds the Intuit app credentials and vendor endpoints
type QuickBooksConfig struct {
	ClientID             string
	ClientSecret         string
	RedirectURI          string
	Environment          string `validate:"oneof=sandbox production"`
	Scopes               []string
	AuthURL              string `validate:"url"`
	TokenURL             string `validate:"url"`
	RevokeURL            string `validate:"url"`
	SandboxAPIBaseURL    string `validate:"url"`
	ProductionAPIBaseURL string `validate:"url"`
	MinorVersion         string `validate:"numeric"`
	DefaultItemID        string `validate:"required"`
	DefaultItemName      string
}

// IsConfigured reports whether the minimum credentials for the OAuth flow are present
func (q QuickBooksConfig) IsConfigured() bool {
	return q.ClientID != "" && q.ClientSecret != "" && q.RedirectURI != ""
}

// APIBaseURL returns the accounting API host for the given environment
func (q QuickBooksConfig) APIBaseURL(environment string) string {
	if environment == EnvironmentProduction {
		return q.ProductionAPIBaseURL
	}
	return q.SandboxAPIBaseURL
}

// AuthConfig holds end-user authentication settings
type AuthConfig struct {
	SessionSecret string
	SecureCookies bool
	JWKSURL       string `validate:"omitempty,url"`
}

// SyncConfig controls the background payment poller
type SyncConfig struct {
	PaymentPollEnabled bool
	PaymentPollTick    time.Duration `validate:"min=1s"`
}

// DefaultQuickBooksConfig returns the Intuit endpoints with empty credentials
func DefaultQuickBooksConfig() QuickBooksConfig {
	return QuickBooksConfig{
		Environment:          EnvironmentSandbox,
		Scopes:               []string{"com.intuit.quickbooks.accounting"},
		AuthURL:              "https://appcenter.intuit.com/connect/oauth2",
		TokenURL:             "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
		RevokeURL:            "https://developer.api.intuit.com/v2/oauth2/tokens/revoke",
		SandboxAPIBaseURL:    "https://sandbox-quickbooks.api.intuit.com",
		ProductionAPIBaseURL: "https://quickbooks.api.intuit.com",
		MinorVersion:         "75",
		DefaultItemID:        "1",
		DefaultItemName:      "Services",
	}
}

// Load reads configuration from the environment, after loading .env when present
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	qb := DefaultQuickBooksConfig()
	qb.ClientID = os.Getenv("QUICKBOOKS_CLIENT_ID")
	qb.ClientSecret = os.Getenv("QUICKBOOKS_CLIENT_SECRET")
	qb.RedirectURI = os.Getenv("QUICKBOOKS_REDIRECT_URI")
	qb.Environment = stringFromEnv("QUICKBOOKS_ENVIRONMENT", qb.Environment)
	if scopes := listFromEnv("QUICKBOOKS_SCOPES"); len(scopes) > 0 {
		qb.Scopes = scopes
	}
	qb.AuthURL = stringFromEnv("QUICKBOOKS_AUTH_URL", qb.AuthURL)
	qb.TokenURL = stringFromEnv("QUICKBOOKS_TOKEN_URL", qb.TokenURL)
	qb.RevokeURL = stringFromEnv("QUICKBOOKS_REVOKE_URL", qb.RevokeURL)
	qb.SandboxAPIBaseURL = stringFromEnv("QUICKBOOKS_SANDBOX_BASE_URL", qb.SandboxAPIBaseURL)
	qb.ProductionAPIBaseURL = stringFromEnv("QUICKBOOKS_PRODUCTION_BASE_URL", qb.ProductionAPIBaseURL)
	qb.MinorVersion = stringFromEnv("QUICKBOOKS_MINOR_VERSION", qb.MinorVersion)
	qb.DefaultItemID = stringFromEnv("QUICKBOOKS_DEFAULT_ITEM_ID", qb.DefaultItemID)
	qb.DefaultItemName = stringFromEnv("QUICKBOOKS_DEFAULT_ITEM_NAME", qb.DefaultItemName)

	cfg := &Config{
		Server: ServerConfig{
			Port:    stringFromEnv("SERVER_PORT", "8080"),
			Timeout: intFromEnv("SERVER_TIMEOUT", 15),
		},
		Database: DatabaseConfig{
			Driver:          stringFromEnv("DB_DRIVER", "postgres"),
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
			Tracing:         boolFromEnv("DB_TRACING", false),
		},
		Redis: RedisConfig{
			Addresses: listFromEnv("REDIS_ADDRESSES"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        intFromEnv("REDIS_DB", 0),
			KeyPrefix: stringFromEnv("REDIS_KEY_PREFIX", "qbsync"),
			EnableTLS: boolFromEnv("REDIS_TLS", false),
		},
		QuickBooks: qb,
		Auth: AuthConfig{
			SessionSecret: os.Getenv("SESSION_SECRET"),
			SecureCookies: boolFromEnv("SECURE_COOKIES", true),
			JWKSURL:       os.Getenv("JWKS_URL"),
		},
		Sync: SyncConfig{
			PaymentPollEnabled: boolFromEnv("PAYMENT_POLL_ENABLED", true),
			PaymentPollTick:    durationFromEnv("PAYMENT_POLL_TICK", time.Minute),
		},
		LogLevel: stringFromEnv("LOG_LEVEL", "info"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints on a loaded configuration
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func stringFromEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
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

func boolFromEnv(key string, fallback bool) bool {
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

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
