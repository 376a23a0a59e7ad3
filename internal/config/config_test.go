package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/billbox")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_URL", "https://billbox.example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")
	t.Setenv("S3_BUCKET", "invoices")
}

func TestLoad(t *testing.T) {
	t.Run("loads valid configuration", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PORT", "")
		t.Setenv("SCAN_MAX_RESULTS", "")
		t.Setenv("S3_USE_SSL", "")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "postgres://localhost/billbox", cfg.DatabaseURL)
		require.Equal(t, "8080", cfg.Port)
		require.Equal(t, int64(DefaultScanMaxResults), cfg.ScanMaxResults)
		require.False(t, cfg.S3UseSSL)
	})

	t.Run("fails when required keys missing", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "DATABASE_URL is required")
		require.Contains(t, err.Error(), "JWT_SECRET is required")
	})

	t.Run("trims trailing slash from app url", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("APP_URL", "https://billbox.example.com/")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "https://billbox.example.com", cfg.AppURL)
		require.Equal(t, "https://billbox.example.com/api/gmail/callback", cfg.RedirectURL())
	})

	t.Run("bounds scan max results", func(t *testing.T) {
		setRequiredEnv(t)

		t.Setenv("SCAN_MAX_RESULTS", "25")
		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, int64(25), cfg.ScanMaxResults)

		t.Setenv("SCAN_MAX_RESULTS", "5000")
		cfg, err = Load()
		require.NoError(t, err)
		require.Equal(t, int64(DefaultScanMaxResults), cfg.ScanMaxResults)

		t.Setenv("SCAN_MAX_RESULTS", "-1")
		cfg, err = Load()
		require.NoError(t, err)
		require.Equal(t, int64(DefaultScanMaxResults), cfg.ScanMaxResults)
	})

	t.Run("parses ssl flag", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("S3_USE_SSL", "true")

		cfg, err := Load()
		require.NoError(t, err)
		require.True(t, cfg.S3UseSSL)
	})
}
