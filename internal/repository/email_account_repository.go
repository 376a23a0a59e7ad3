package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gitlab.com/yelinaung/billbox/internal/database"
	"gitlab.com/yelinaung/billbox/internal/models"
)

// EmailAccountRepository handles linked-mailbox database operations.
type EmailAccountRepository struct {
	db database.PGXDB
}

// NewEmailAccountRepository creates a new EmailAccountRepository.
func NewEmailAccountRepository(db database.PGXDB) *EmailAccountRepository {
	return &EmailAccountRepository{db: db}
}

// Upsert links a mailbox, keyed by (user, email address). Re-authorizing
// an already linked address refreshes its credentials in place.
func (r *EmailAccountRepository) Upsert(ctx context.Context, acc *models.EmailAccount) error {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if acc.Provider == "" {
		acc.Provider = models.MailProviderGmail
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO email_accounts (id, user_id, provider, email, access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, email) DO UPDATE SET
			provider = EXCLUDED.provider,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at
		RETURNING id, created_at
	`, acc.ID, acc.UserID, acc.Provider, acc.Email, acc.AccessToken,
		acc.RefreshToken, acc.TokenExpiresAt,
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert email account: %w", err)
	}
	return nil
}

// ListByUser retrieves the user's linked mailboxes.
func (r *EmailAccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EmailAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, provider, email, access_token, refresh_token, token_expires_at, created_at
		FROM email_accounts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query email accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.EmailAccount
	for rows.Next() {
		var acc models.EmailAccount
		if err := rows.Scan(
			&acc.ID, &acc.UserID, &acc.Provider, &acc.Email, &acc.AccessToken,
			&acc.RefreshToken, &acc.TokenExpiresAt, &acc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan email account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating email accounts: %w", err)
	}
	return accounts, nil
}

// Delete disconnects a mailbox owned by the user.
// Returns false when no owned row matched.
func (r *EmailAccountRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM email_accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete email account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
