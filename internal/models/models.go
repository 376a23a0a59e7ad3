// Package models defines the domain entities for the invoice scanner.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when extraction cannot determine one.
const DefaultCurrency = "EUR"

// SupportedCurrencies lists all supported currency codes with display symbols.
var SupportedCurrencies = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"CHF": "CHF",
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
	"PLN": "zł",
	"CZK": "Kč",
	"JPY": "¥",
	"AUD": "A$",
	"CAD": "C$",
	"SGD": "S$",
}

// Invoice status values.
const (
	// InvoiceStatusNeedsPDF marks a recognized billing email with no
	// captured attachment.
	InvoiceStatusNeedsPDF = "needs_pdf"
	// InvoiceStatusPending marks a captured PDF that yielded no usable amount.
	InvoiceStatusPending = "pending"
	// InvoiceStatusProcessed marks a fully resolved record.
	InvoiceStatusProcessed = "processed"
	// InvoiceStatusAdded marks a manually created, already resolved record.
	InvoiceStatusAdded = "added"
	// InvoiceStatusError is an explicit failure marker settable via edits.
	InvoiceStatusError = "error"
)

// ValidInvoiceStatus reports whether s is one of the known status values.
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusNeedsPDF, InvoiceStatusPending, InvoiceStatusProcessed,
		InvoiceStatusAdded, InvoiceStatusError:
		return true
	}
	return false
}

// Invoice is one inferred or manually created billing record.
type Invoice struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	EmailAccountID *uuid.UUID          `json:"email_account_id"`
	Provider       string              `json:"provider"`
	Amount         decimal.NullDecimal `json:"amount"`
	Currency       string              `json:"currency"`
	InvoiceDate    *time.Time          `json:"invoice_date"`
	EmailDate      *time.Time          `json:"email_date"`
	PDFPath        *string             `json:"pdf_path"`
	PDFFilename    *string             `json:"pdf_filename"`
	EmailSubject   *string             `json:"email_subject"`
	GmailMessageID *string             `json:"gmail_message_id"`
	InvoiceURL     *string             `json:"invoice_url"`
	Status         string              `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
}

// HasAmount reports whether a usable amount is present.
func (i *Invoice) HasAmount() bool {
	return i.Amount.Valid && !i.Amount.Decimal.IsZero()
}

// MailProviderGmail is the provider tag for Gmail-linked accounts.
const MailProviderGmail = "gmail"

// EmailAccount is a linked mailbox with refreshable credentials.
// Tokens never serialize to JSON.
type EmailAccount struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Provider       string     `json:"provider"`
	Email          string     `json:"email"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Provider is a billing sender pattern to scan for. Default providers are
// system-owned (UserID is nil) and immutable through the CRUD surface.
type Provider struct {
	ID          uuid.UUID  `json:"id"`
	UserID      *uuid.UUID `json:"user_id"`
	Name        string     `json:"name"`
	SenderEmail string     `json:"sender_email"`
	SearchQuery string     `json:"search_query"`
	InvoiceURL  *string    `json:"invoice_url"`
	LogoURL     *string    `json:"logo_url"`
	IsDefault   bool       `json:"is_default"`
	CreatedAt   time.Time  `json:"created_at"`
}

// searchKeywords is the fixed subject disjunction matched for every sender.
// "facture" covers French billing subject lines.
const searchKeywords = "subject:(receipt OR invoice OR payment OR facture)"

// BuildSearchQuery derives the mail search predicate for a sender address
// or domain. The same shape is used for built-in and custom providers.
func BuildSearchQuery(sender string) string {
	return fmt.Sprintf("from:%s %s", sender, searchKeywords)
}
