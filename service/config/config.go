package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Bounds for the transaction window requested from the wallet API.
const (
	MinTransactionWindow = 1
	MaxTransactionWindow = 100
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Wallet API configuration
	APIURL   string
	APIToken string
	UserID   string

	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration (empty disables publishing)
	NATSURL string

	// Refresh configuration
	RefreshInterval    time.Duration
	MinRefreshInterval time.Duration
	RequestTimeout     time.Duration

	// Window configuration
	TransactionWindow int
	DisplayWindow     int

	// Presentation
	Locale   string
	Timezone string
	Location *time.Location
}

// Load reads configuration from environment variables and validates all required fields.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var errs []error

	// Wallet API configuration
	cfg.APIURL = os.Getenv("CELF_API_URL")
	if cfg.APIURL == "" {
		errs = append(errs, fmt.Errorf("CELF_API_URL is required"))
	} else if err := validateURL(cfg.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("CELF_API_URL: %w", err))
	}
	cfg.APIToken = os.Getenv("CELF_API_TOKEN")
	cfg.UserID = os.Getenv("CELF_USER_ID")
	if cfg.UserID == "" {
		errs = append(errs, fmt.Errorf("CELF_USER_ID is required"))
	}

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Refresh configuration
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RefreshInterval = refreshInterval
	}

	minInterval, err := parseDuration("MIN_REFRESH_INTERVAL", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinRefreshInterval = minInterval
	}

	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RequestTimeout = requestTimeout
	}

	if cfg.RefreshInterval > 0 && cfg.MinRefreshInterval > cfg.RefreshInterval {
		errs = append(errs, fmt.Errorf("MIN_REFRESH_INTERVAL (%v) cannot be greater than REFRESH_INTERVAL (%v)",
			cfg.MinRefreshInterval, cfg.RefreshInterval))
	}

	// Window configuration
	window, err := parseInt("TRANSACTION_WINDOW", 50)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TransactionWindow = window
	}
	if cfg.TransactionWindow < MinTransactionWindow || cfg.TransactionWindow > MaxTransactionWindow {
		errs = append(errs, fmt.Errorf("TRANSACTION_WINDOW must be between %d and %d, got %d",
			MinTransactionWindow, MaxTransactionWindow, cfg.TransactionWindow))
	}

	display, err := parseInt("DISPLAY_WINDOW", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DisplayWindow = display
	}
	if cfg.DisplayWindow < 1 || cfg.DisplayWindow > cfg.TransactionWindow {
		errs = append(errs, fmt.Errorf("DISPLAY_WINDOW (%d) must be between 1 and TRANSACTION_WINDOW (%d)",
			cfg.DisplayWindow, cfg.TransactionWindow))
	}

	// Presentation
	cfg.Locale = getEnvOrDefault("LOCALE", "en-US")
	if _, err := language.Parse(cfg.Locale); err != nil {
		errs = append(errs, fmt.Errorf("LOCALE: invalid locale %q: %w", cfg.Locale, err))
	}

	cfg.Timezone = getEnvOrDefault("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: invalid timezone %q: %w", cfg.Timezone, err))
	} else {
		cfg.Location = loc
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.APIURL == "" {
		errs = append(errs, fmt.Errorf("APIURL is required"))
	} else if err := validateURL(c.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("APIURL: %w", err))
	}

	if c.UserID == "" {
		errs = append(errs, fmt.Errorf("UserID is required"))
	}

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RequestTimeout must be positive"))
	}

	if c.MinRefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("MinRefreshInterval cannot be negative"))
	}

	if c.RefreshInterval > 0 && c.MinRefreshInterval > c.RefreshInterval {
		errs = append(errs, fmt.Errorf("MinRefreshInterval cannot be greater than RefreshInterval"))
	}

	if c.TransactionWindow < MinTransactionWindow || c.TransactionWindow > MaxTransactionWindow {
		errs = append(errs, fmt.Errorf("TransactionWindow must be between %d and %d", MinTransactionWindow, MaxTransactionWindow))
	}

	if c.DisplayWindow < 1 || c.DisplayWindow > c.TransactionWindow {
		errs = append(errs, fmt.Errorf("DisplayWindow must be between 1 and TransactionWindow"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// loadDotEnv loads path into the environment if it exists.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
