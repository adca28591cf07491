// Package config builds the service configuration from the environment.
//
// Values are read once at startup. Before reading, .env files are loaded:
// ENV_FILE if set, otherwise .env.local and then .env. Variables already set
// in the process environment are never overridden by a file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Email provider names.
const (
	ProviderBrevo = "brevo"
	ProviderGmail = "gmail"
	ProviderMock  = "mock"
)

// Config holds all service configuration. It is built once and not modified.
type Config struct {
	PrimaryURL      string
	SecondaryURL    string
	APIKey          string
	DownloadBaseURL string

	EmailProvider         string
	BrevoAPIKey           string
	GoogleCredentialsJSON string
	EmailFrom             string
	EmailFromName         string
	EmailTo               []string

	StorageBucket string
	LocalStorage  string

	TestMode    bool
	SeedMode    bool
	MaxAge      time.Duration
	HTTPTimeout time.Duration
	LogLevel    slog.Level
}

// Load reads .env files and the environment and validates the result.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	return FromEnv(os.Getenv)
}

// loadEnvFiles loads .env files. Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var errs []error

	testMode, err := parseBool(env("TEST_MODE", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TEST_MODE: %w", err))
	}
	seedMode, err := parseBool(env("SEED_MODE", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SEED_MODE: %w", err))
	}
	maxAgeHours, err := strconv.Atoi(env("MAX_AGE_HOURS", "24"))
	if err != nil || maxAgeHours <= 0 {
		errs = append(errs, fmt.Errorf("MAX_AGE_HOURS: must be a positive integer, got %q", getenv("MAX_AGE_HOURS")))
	}
	httpTimeout, err := time.ParseDuration(env("HTTP_TIMEOUT", "30s"))
	if err != nil || httpTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT: must be a positive duration, got %q", getenv("HTTP_TIMEOUT")))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg := &Config{
		PrimaryURL:            env("NOTICE_PRIMARY_URL", ""),
		SecondaryURL:          env("NOTICE_SECONDARY_URL", ""),
		APIKey:                env("NOTICE_API_KEY", ""),
		DownloadBaseURL:       env("DOWNLOAD_BASE_URL", ""),
		BrevoAPIKey:           env("BREVO_API_KEY", ""),
		GoogleCredentialsJSON: env("GOOGLE_CREDENTIALS_JSON", ""),
		EmailFrom:             env("EMAIL_FROM", ""),
		EmailFromName:         env("EMAIL_FROM_NAME", "Notice Notifier"),
		EmailTo:               splitList(env("EMAIL_TO", "")),
		StorageBucket:         env("STORAGE_BUCKET", ""),
		LocalStorage:          env("LOCAL_STORAGE", ""),
		TestMode:              testMode,
		SeedMode:              seedMode,
		MaxAge:                time.Duration(maxAgeHours) * time.Hour,
		HTTPTimeout:           httpTimeout,
		LogLevel:              level,
	}

	defaultProvider := ProviderMock
	if cfg.BrevoAPIKey != "" {
		defaultProvider = ProviderBrevo
	}
	cfg.EmailProvider = strings.ToLower(env("EMAIL_PROVIDER", defaultProvider))

	// Default to local development storage if no bucket is specified.
	if cfg.StorageBucket == "" && cfg.LocalStorage == "" {
		cfg.LocalStorage = "./data"
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if c.PrimaryURL == "" {
		errs = append(errs, errors.New("NOTICE_PRIMARY_URL is required"))
	}
	if c.SecondaryURL == "" {
		errs = append(errs, errors.New("NOTICE_SECONDARY_URL is required"))
	}
	if c.DownloadBaseURL == "" {
		errs = append(errs, errors.New("DOWNLOAD_BASE_URL is required"))
	}
	if c.TestMode && c.SeedMode {
		errs = append(errs, errors.New("TEST_MODE and SEED_MODE cannot both be enabled"))
	}

	switch c.EmailProvider {
	case ProviderMock:
	case ProviderBrevo:
		if c.BrevoAPIKey == "" {
			errs = append(errs, errors.New("BREVO_API_KEY is required for the brevo provider"))
		}
	case ProviderGmail:
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER %q is not one of brevo, gmail, mock", c.EmailProvider))
	}
	if c.EmailProvider != ProviderMock {
		if c.EmailFrom == "" {
			errs = append(errs, errors.New("EMAIL_FROM is required"))
		}
		if len(c.EmailTo) == 0 {
			errs = append(errs, errors.New("EMAIL_TO is required"))
		}
	}
	return errs
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
