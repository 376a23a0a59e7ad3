// Package scan walks linked mailboxes for billing emails and turns them
// into invoice records. One run visits every linked account, searches each
// provider's query, and captures messages not seen before.
package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gitlab.com/yelinaung/billbox/internal/extract"
	"gitlab.com/yelinaung/billbox/internal/gmail"
	"gitlab.com/yelinaung/billbox/internal/logger"
	"gitlab.com/yelinaung/billbox/internal/models"
)

// MailSession reads one linked mailbox.
type MailSession interface {
	Search(ctx context.Context, query string, max int64) ([]string, error)
	Message(ctx context.Context, id string) (*gmail.MessageDetails, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// MailConnector opens sessions for linked accounts.
type MailConnector interface {
	Open(ctx context.Context, account models.EmailAccount) (MailSession, error)
}

// GmailConnector adapts the Gmail client to the MailConnector seam.
type GmailConnector struct {
	Client *gmail.Client
}

func (g GmailConnector) Open(ctx context.Context, account models.EmailAccount) (MailSession, error) {
	return g.Client.Open(ctx, account)
}

// Extractor pulls structured billing data out of document text or email
// bodies.
type Extractor interface {
	ParseInvoice(ctx context.Context, text, emailSubject string) (*extract.InvoiceData, error)
	ParseEmailBody(ctx context.Context, body, emailSubject, providerName string) (*extract.InvoiceData, error)
}

// PDFStore persists captured attachments.
type PDFStore interface {
	Store(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error)
}

// InvoiceStore is the slice of invoice persistence the scan needs.
type InvoiceStore interface {
	ExistsByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (bool, error)
	CreateFromScan(ctx context.Context, inv *models.Invoice) (bool, error)
}

// ProviderStore resolves which senders to scan for.
type ProviderStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Provider, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Provider, error)
}

// AccountStore lists the user's linked mailboxes.
type AccountStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EmailAccount, error)
}

// Service orchestrates inbox scans.
type Service struct {
	mail       MailConnector
	extractor  Extractor
	pdfs       PDFStore
	invoices   InvoiceStore
	providers  ProviderStore
	accounts   AccountStore
	maxResults int64
}

// NewService creates a scan service. maxResults caps how many messages one
// provider search may return.
func NewService(
	mail MailConnector,
	extractor Extractor,
	pdfs PDFStore,
	invoices InvoiceStore,
	providers ProviderStore,
	accounts AccountStore,
	maxResults int64,
) *Service {
	return &Service{
		mail:       mail,
		extractor:  extractor,
		pdfs:       pdfs,
		invoices:   invoices,
		providers:  providers,
		accounts:   accounts,
		maxResults: maxResults,
	}
}

// Run scans every linked mailbox of the user. A non-nil providerID narrows
// the run to that one provider. Mailbox credential failures stop the run
// and surface as a ReconnectRequiredError next to the partial summary;
// everything else is a soft error collected in the summary.
func (s *Service) Run(ctx context.Context, userID uuid.UUID, providerID *uuid.UUID) (*Summary, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoMailbox
	}

	providers, err := s.resolveProviders(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, account := range accounts {
		if err := s.scanAccount(ctx, account, providers, summary); err != nil {
			if gmail.IsAuthError(err) {
				logger.Log.Warn().
					Str("user", logger.HashUserID(account.UserID)).
					Str("email", logger.RedactEmail(account.Email)).
					Err(err).
					Msg("Mailbox credentials rejected, stopping scan")
				return summary, &ReconnectRequiredError{Email: account.Email, Err: err}
			}
			return summary, err
		}
	}

	logger.Log.Info().
		Str("user", logger.HashUserID(userID)).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Msg("Scan finished")
	return summary, nil
}

func (s *Service) resolveProviders(ctx context.Context, userID uuid.UUID, providerID *uuid.UUID) ([]models.Provider, error) {
	if providerID == nil {
		providers, err := s.providers.ListForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list providers: %w", err)
		}
		return providers, nil
	}

	provider, err := s.providers.GetForUser(ctx, *providerID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider: %w", err)
	}
	return []models.Provider{*provider}, nil
}

// scanAccount runs every provider search against one mailbox. Returned
// errors abort the whole run; per-message trouble lands in the summary.
func (s *Service) scanAccount(ctx context.Context, account models.EmailAccount, providers []models.Provider, summary *Summary) error {
	session, err := s.mail.Open(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to open mailbox %s: %w", logger.RedactEmail(account.Email), err)
	}

	for _, provider := range providers {
		ids, err := session.Search(ctx, provider.SearchQuery, s.maxResults)
		if err != nil {
			if gmail.IsAuthError(err) {
				return err
			}
			summary.addError("search %s: %v", provider.Name, err)
			continue
		}

		for _, id := range ids {
			exists, err := s.invoices.ExistsByMessageID(ctx, account.UserID, id)
			if err != nil {
				return fmt.Errorf("failed to check message %s: %w", id, err)
			}
			if exists {
				summary.Skipped++
				continue
			}

			created, err := s.processMessage(ctx, session, account, provider, id, summary)
			if err != nil {
				if gmail.IsAuthError(err) {
					return err
				}
				summary.addError("message %s (%s): %v", id, provider.Name, err)
				continue
			}
			if created {
				summary.Processed++
			} else {
				// Lost an insert race with a concurrent scan.
				summary.Skipped++
			}
		}
	}
	return nil
}

// processMessage captures one message as an invoice record. The capture
// variant is decided once per message: a PDF attachment wins, an email
// body is second best, and a bare match still yields a needs_pdf record.
func (s *Service) processMessage(
	ctx context.Context,
	session MailSession,
	account models.EmailAccount,
	provider models.Provider,
	messageID string,
	summary *Summary,
) (bool, error) {
	details, err := session.Message(ctx, messageID)
	if err != nil {
		return false, err
	}

	inv := &models.Invoice{
		UserID:         account.UserID,
		EmailAccountID: &account.ID,
		Provider:       provider.Name,
		Currency:       models.DefaultCurrency,
		EmailDate:      details.Date,
		GmailMessageID: &details.ID,
		InvoiceURL:     provider.InvoiceURL,
		Status:         models.InvoiceStatusNeedsPDF,
	}
	if details.Subject != "" {
		subject := details.Subject
		inv.EmailSubject = &subject
	}

	var data *extract.InvoiceData
	if len(details.Attachments) > 0 {
		data, err = s.captureAttachment(ctx, session, account, details, inv)
		if err != nil {
			if gmail.IsAuthError(err) {
				return false, err
			}
			// The attachment could not be captured; keep the match as a
			// needs_pdf record and fall back to the body.
			summary.addError("attachment %s (%s): %v", messageID, provider.Name, err)
			data = s.extractFromBody(ctx, details, provider, summary)
		}
	} else {
		data = s.extractFromBody(ctx, details, provider, summary)
	}

	applyExtraction(inv, data)
	inv.Status = deriveStatus(inv.PDFPath != nil, data)

	logger.Log.Debug().
		Str("user", logger.HashUserID(account.UserID)).
		Str("provider", provider.Name).
		Str("subject", logger.SanitizeSubject(details.Subject)).
		Str("status", inv.Status).
		Msg("Captured message")

	return s.invoices.CreateFromScan(ctx, inv)
}

// captureAttachment downloads and stores the first PDF attachment, then
// runs extraction over its text. A stored PDF with failed extraction is
// still a success; only download and store failures propagate.
func (s *Service) captureAttachment(
	ctx context.Context,
	session MailSession,
	account models.EmailAccount,
	details *gmail.MessageDetails,
	inv *models.Invoice,
) (*extract.InvoiceData, error) {
	att := details.Attachments[0]

	raw, err := session.Attachment(ctx, details.ID, att.ID)
	if err != nil {
		return nil, err
	}

	key, err := s.pdfs.Store(ctx, account.UserID, att.Filename, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}
	inv.PDFPath = &key
	filename := att.Filename
	inv.PDFFilename = &filename

	text, err := extract.Text(raw)
	if err != nil {
		logger.Log.Warn().
			Str("user", logger.HashUserID(account.UserID)).
			Err(err).
			Msg("Unable to read PDF text, falling back to email body")
		text = details.BodyText
	}

	data, err := s.extractor.ParseInvoice(ctx, text, details.Subject)
	if err != nil {
		logger.Log.Warn().
			Str("user", logger.HashUserID(account.UserID)).
			Err(err).
			Msg("Invoice extraction failed")
		return nil, nil
	}
	return data, nil
}

// extractFromBody runs body extraction when no attachment was captured.
// Failures degrade to no data rather than failing the message.
func (s *Service) extractFromBody(ctx context.Context, details *gmail.MessageDetails, provider models.Provider, summary *Summary) *extract.InvoiceData {
	if details.BodyText == "" {
		return nil
	}
	data, err := s.extractor.ParseEmailBody(ctx, details.BodyText, details.Subject, provider.Name)
	if err != nil {
		summary.addError("extract %s (%s): %v", details.ID, provider.Name, err)
		return nil
	}
	return data
}

// applyExtraction copies extracted fields onto the record. The name the
// model read off the document wins over the configured provider name,
// unless extraction came back empty or with the Unknown placeholder.
func applyExtraction(inv *models.Invoice, data *extract.InvoiceData) {
	if data == nil {
		return
	}
	if data.HasProvider() {
		inv.Provider = data.Provider
	}
	if data.HasAmount() {
		inv.Amount.Decimal = data.Amount
		inv.Amount.Valid = true
	}
	if data.Currency != "" {
		inv.Currency = data.Currency
	}
	if data.HasDate() {
		date := data.Date
		inv.InvoiceDate = &date
	}
}

// deriveStatus maps capture outcome to a record status. No stored PDF is
// always needs_pdf, a stored PDF with an amount is processed, and a stored
// PDF without one is pending for manual follow-up.
func deriveStatus(hasPDF bool, data *extract.InvoiceData) string {
	if !hasPDF {
		return models.InvoiceStatusNeedsPDF
	}
	if data != nil && data.HasAmount() {
		return models.InvoiceStatusProcessed
	}
	return models.InvoiceStatusPending
}
