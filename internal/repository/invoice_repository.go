// Package repository implements persistence over PostgreSQL for the
// invoice scanner's entities. Every read and write is scoped to the owning
// user so one user's rows never leak into another's results.
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

const invoiceColumns = `id, user_id, email_account_id, provider, amount, currency,
	invoice_date, email_date, pdf_path, pdf_filename, email_subject,
	gmail_message_id, invoice_url, status, created_at`

// InvoiceRepository handles invoice database operations.
type InvoiceRepository struct {
	db database.PGXDB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db database.PGXDB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create adds a manually entered invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Currency == "" {
		inv.Currency = models.DefaultCurrency
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (id, user_id, email_account_id, provider, amount, currency,
			invoice_date, email_date, pdf_path, pdf_filename, email_subject,
			gmail_message_id, invoice_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, inv.ID, inv.UserID, inv.EmailAccountID, inv.Provider, inv.Amount, inv.Currency,
		inv.InvoiceDate, inv.EmailDate, inv.PDFPath, inv.PDFFilename, inv.EmailSubject,
		inv.GmailMessageID, inv.InvoiceURL, inv.Status,
	).Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// CreateFromScan inserts an invoice discovered by the scan. The partial
// unique index on (user_id, gmail_message_id) is the dedup authority: a
// conflicting insert is silently dropped and reported as not created, so
// two racing scans cannot double-record one message.
func (r *InvoiceRepository) CreateFromScan(ctx context.Context, inv *models.Invoice) (bool, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Currency == "" {
		inv.Currency = models.DefaultCurrency
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (id, user_id, email_account_id, provider, amount, currency,
			invoice_date, email_date, pdf_path, pdf_filename, email_subject,
			gmail_message_id, invoice_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, gmail_message_id) WHERE gmail_message_id IS NOT NULL
		DO NOTHING
		RETURNING created_at
	`, inv.ID, inv.UserID, inv.EmailAccountID, inv.Provider, inv.Amount, inv.Currency,
		inv.InvoiceDate, inv.EmailDate, inv.PDFPath, inv.PDFFilename, inv.EmailSubject,
		inv.GmailMessageID, inv.InvoiceURL, inv.Status,
	).Scan(&inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert scanned invoice: %w", err)
	}
	return true, nil
}

// ExistsByMessageID reports whether the user already has an invoice for
// the given mail message.
func (r *InvoiceRepository) ExistsByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invoices WHERE user_id = $1 AND gmail_message_id = $2
		)
	`, userID, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice existence: %w", err)
	}
	return exists, nil
}

// GetByID retrieves an invoice owned by the given user.
// Rows owned by other users behave exactly like missing rows.
func (r *InvoiceRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices WHERE id = $1 AND user_id = $2
	`, id, userID)

	inv, err := scanInvoice(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// ListByUser retrieves all invoices for a user, newest billing date first.
func (r *InvoiceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE user_id = $1
		ORDER BY invoice_date DESC NULLS LAST, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

// Update rewrites the mutable fields of an invoice owned by the user.
// Returns false when no owned row matched.
func (r *InvoiceRepository) Update(ctx context.Context, inv *models.Invoice) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET
			provider = $3,
			amount = $4,
			currency = $5,
			invoice_date = $6,
			pdf_path = $7,
			pdf_filename = $8,
			invoice_url = $9,
			status = $10
		WHERE id = $1 AND user_id = $2
	`, inv.ID, inv.UserID, inv.Provider, inv.Amount, inv.Currency,
		inv.InvoiceDate, inv.PDFPath, inv.PDFFilename, inv.InvoiceURL, inv.Status)
	if err != nil {
		return false, fmt.Errorf("failed to update invoice: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an invoice owned by the user.
// Returns false when no owned row matched.
func (r *InvoiceRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM invoices WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete invoice: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.EmailAccountID, &inv.Provider, &inv.Amount,
		&inv.Currency, &inv.InvoiceDate, &inv.EmailDate, &inv.PDFPath,
		&inv.PDFFilename, &inv.EmailSubject, &inv.GmailMessageID,
		&inv.InvoiceURL, &inv.Status, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
