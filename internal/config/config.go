// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultScanMaxResults caps how many messages one provider search returns.
// The scan must finish inside the host's wall-clock budget, so this stays small.
const DefaultScanMaxResults = 10

// Config holds all configuration for the application.
type Config struct {
	DatabaseURL        string
	Port               string
	AppURL             string
	JWTSecret          string
	LogLevel           string
	GoogleClientID     string
	GoogleClientSecret string
	GeminiAPIKey       string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	ScanMaxResults     int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               os.Getenv("PORT"),
		AppURL:             strings.TrimSuffix(os.Getenv("APP_URL"), "/"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.S3UseSSL = os.Getenv("S3_USE_SSL") == "true"

	cfg.ScanMaxResults = DefaultScanMaxResults
	if maxStr := os.Getenv("SCAN_MAX_RESULTS"); maxStr != "" {
		if n, err := strconv.ParseInt(maxStr, 10, 64); err == nil && n > 0 && n <= 100 {
			cfg.ScanMaxResults = n
		}
	}

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if c.AppURL == "" {
		errs = append(errs, "APP_URL is required")
	}
	if c.GoogleClientID == "" {
		errs = append(errs, "GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		errs = append(errs, "GOOGLE_CLIENT_SECRET is required")
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, "GEMINI_API_KEY is required")
	}
	if c.S3Endpoint == "" {
		errs = append(errs, "S3_ENDPOINT is required")
	}
	if c.S3AccessKey == "" {
		errs = append(errs, "S3_ACCESS_KEY is required")
	}
	if c.S3SecretKey == "" {
		errs = append(errs, "S3_SECRET_KEY is required")
	}
	if c.S3Bucket == "" {
		errs = append(errs, "S3_BUCKET is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RedirectURL is the OAuth callback endpoint registered with Google.
func (c *Config) RedirectURL() string {
	return c.AppURL + "/api/gmail/callback"
}
