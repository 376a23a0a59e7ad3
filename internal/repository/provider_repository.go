package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gitlab.com/yelinaung/billbox/internal/database"
	"gitlab.com/yelinaung/billbox/internal/models"
)

const providerColumns = `id, user_id, name, sender_email, search_query,
	invoice_url, logo_url, is_default, created_at`

// ProviderRepository handles billing-provider database operations.
type ProviderRepository struct {
	db database.PGXDB
}

// NewProviderRepository creates a new ProviderRepository.
func NewProviderRepository(db database.PGXDB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// ListForUser retrieves the default providers plus the user's own, by name.
func (r *ProviderRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Provider, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE is_default OR user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating providers: %w", err)
	}
	return providers, nil
}

// GetForUser retrieves one provider visible to the user: a default or one
// of their own. Providers owned by other users behave like missing rows.
func (r *ProviderRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1 AND (is_default OR user_id = $2)
	`, id, userID)

	p, err := scanProvider(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

// CreateCustom adds a user-owned provider. The search query is derived
// from the sender address; callers cannot supply their own.
func (r *ProviderRepository) CreateCustom(ctx context.Context, p *models.Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.SearchQuery = models.BuildSearchQuery(p.SenderEmail)
	p.IsDefault = false

	err := r.db.QueryRow(ctx, `
		INSERT INTO providers (id, user_id, name, sender_email, search_query, invoice_url, logo_url, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING created_at
	`, p.ID, p.UserID, p.Name, p.SenderEmail, p.SearchQuery, p.InvoiceURL, p.LogoURL,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// UpdateCustom rewrites a user-owned provider and rederives its search
// query. Default providers fall outside the predicate, so updating one is
// a silent no-op returning nil, false.
func (r *ProviderRepository) UpdateCustom(ctx context.Context, p *models.Provider, userID uuid.UUID) (*models.Provider, error) {
	searchQuery := models.BuildSearchQuery(p.SenderEmail)

	row := r.db.QueryRow(ctx, `
		UPDATE providers SET
			name = $3,
			sender_email = $4,
			search_query = $5,
			invoice_url = $6,
			logo_url = $7
		WHERE id = $1 AND user_id = $2 AND NOT is_default
		RETURNING `+providerColumns+`
	`, p.ID, userID, p.Name, p.SenderEmail, searchQuery, p.InvoiceURL, p.LogoURL)

	updated, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update provider: %w", err)
	}
	return updated, nil
}

// DeleteCustom removes a user-owned provider. Deleting a default provider
// affects zero rows and reports false without error.
func (r *ProviderRepository) DeleteCustom(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM providers WHERE id = $1 AND user_id = $2 AND NOT is_default
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete provider: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanProvider(row pgx.Row) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.SenderEmail, &p.SearchQuery,
		&p.InvoiceURL, &p.LogoURL, &p.IsDefault, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
