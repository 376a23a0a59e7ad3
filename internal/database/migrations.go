package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitlab.com/yelinaung/billbox/internal/models"
)

// RunMigrations creates the database schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS email_accounts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			provider TEXT NOT NULL DEFAULT 'gmail',
			email TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			token_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, email)
		)`,

		`CREATE TABLE IF NOT EXISTS providers (
			id UUID PRIMARY KEY,
			user_id UUID,
			name TEXT NOT NULL,
			sender_email TEXT NOT NULL,
			search_query TEXT NOT NULL,
			invoice_url TEXT,
			logo_url TEXT,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_providers_default_name
			ON providers(name) WHERE is_default`,

		`CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			email_account_id UUID REFERENCES email_accounts(id) ON DELETE SET NULL,
			provider TEXT NOT NULL,
			amount DECIMAL(12, 2),
			currency TEXT NOT NULL DEFAULT 'EUR',
			invoice_date DATE,
			email_date TIMESTAMPTZ,
			pdf_path TEXT,
			pdf_filename TEXT,
			email_subject TEXT,
			gmail_message_id TEXT,
			invoice_url TEXT,
			status TEXT NOT NULL DEFAULT 'needs_pdf',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Store-level dedup: concurrent scans racing on the same message
		// resolve through this constraint, not through the pre-insert check.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_user_message
			ON invoices(user_id, gmail_message_id) WHERE gmail_message_id IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_invoices_user_id ON invoices(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status)`,
		`CREATE INDEX IF NOT EXISTS idx_email_accounts_user_id ON email_accounts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_providers_user_id ON providers(user_id)`,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// defaultProvider describes one built-in billing sender.
type defaultProvider struct {
	name       string
	sender     string
	invoiceURL string
}

// defaultProviders are the built-in billing senders seeded at startup.
// Identified by sender domain; subject keywords come from the shared query.
var defaultProviders = []defaultProvider{
	{"Spotify", "spotify.com", "https://www.spotify.com/account/order-history/"},
	{"Netflix", "netflix.com", "https://www.netflix.com/billingactivity"},
	{"Amazon", "amazon.com", "https://www.amazon.com/gp/css/order-history"},
	{"Apple", "apple.com", "https://reportaproblem.apple.com/"},
	{"Google", "google.com", "https://pay.google.com/"},
	{"OpenAI", "openai.com", "https://platform.openai.com/account/billing"},
	{"GitHub", "github.com", "https://github.com/settings/billing"},
	{"Dropbox", "dropbox.com", "https://www.dropbox.com/account/billing"},
	{"Notion", "notion.so", "https://www.notion.so/my-account"},
	{"Deezer", "deezer.com", "https://www.deezer.com/account"},
}

// SeedProviders inserts the built-in provider rows. Re-running is a no-op;
// defaults are keyed by name.
func SeedProviders(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range defaultProviders {
		_, err := pool.Exec(ctx, `
			INSERT INTO providers (id, user_id, name, sender_email, search_query, invoice_url, is_default)
			VALUES ($1, NULL, $2, $3, $4, $5, TRUE)
			ON CONFLICT (name) WHERE is_default DO NOTHING
		`, uuid.New(), p.name, p.sender, models.BuildSearchQuery(p.sender), p.invoiceURL)
		if err != nil {
			return fmt.Errorf("failed to seed provider %q: %w", p.name, err)
		}
	}

	return nil
}
