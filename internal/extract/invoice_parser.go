package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"gitlab.com/yelinaung/billbox/internal/models"
)

// ExtractTimeout is the timeout for Gemini API calls.
const ExtractTimeout = 30 * time.Second

// maxTextLength caps how much document text goes into the prompt.
const maxTextLength = 4000

// ErrExtractTimeout indicates the Gemini API call timed out.
var ErrExtractTimeout = errors.New("invoice extraction timed out")

// InvoiceData contains the structured data extracted from an invoice.
type InvoiceData struct {
	Provider string
	Amount   decimal.Decimal
	Currency string
	Date     time.Time
}

// UnknownProvider is the placeholder name when the model cannot tell
// who issued the invoice.
const UnknownProvider = "Unknown"

// HasAmount returns true if an amount was extracted.
func (d *InvoiceData) HasAmount() bool {
	return !d.Amount.IsZero()
}

// HasProvider returns true if a real provider name was extracted.
func (d *InvoiceData) HasProvider() bool {
	return d.Provider != "" && d.Provider != UnknownProvider
}

// HasDate returns true if a date was extracted.
func (d *InvoiceData) HasDate() bool {
	return !d.Date.IsZero()
}

// emptyData is the graceful fallback when nothing usable comes back.
func emptyData() *InvoiceData {
	return &InvoiceData{Provider: UnknownProvider, Currency: models.DefaultCurrency}
}

// invoiceResponse is the JSON structure returned by Gemini.
type invoiceResponse struct {
	Provider    string  `json:"provider"`
	Amount      *string `json:"amount"`
	Currency    string  `json:"currency"`
	InvoiceDate *string `json:"invoice_date"`
}

// ParseInvoice extracts structured invoice data from document text.
// Extraction is best-effort: a malformed model response degrades to an
// empty record instead of an error.
func (c *Client) ParseInvoice(ctx context.Context, text, emailSubject string) (*InvoiceData, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document text is required")
	}

	prompt := buildInvoicePrompt(text, emailSubject)
	return c.generate(ctx, prompt)
}

// ParseEmailBody extracts structured invoice data from an email body when
// no attachment is available. The provider name hints the model toward the
// expected sender.
func (c *Client) ParseEmailBody(ctx context.Context, body, emailSubject, providerName string) (*InvoiceData, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("email body is required")
	}

	prompt := buildBodyPrompt(body, emailSubject, providerName)
	return c.generate(ctx, prompt)
}

func (c *Client) generate(ctx context.Context, prompt string) (*InvoiceData, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, ExtractTimeout)
	defer cancel()

	resp, err := c.generator.GenerateContent(timeoutCtx, ModelName, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrExtractTimeout
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	var textContent string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textContent += part.Text
		}
	}

	if textContent == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	return parseInvoiceResponse(textContent), nil
}

func buildInvoicePrompt(text, emailSubject string) string {
	return fmt.Sprintf(`You are an invoice data extraction assistant. Extract the following information from this invoice/receipt text.
Return ONLY a valid JSON object with no additional text or markdown formatting.

Required fields:
- "provider": string (the company/service name, e.g. "Spotify", "Netflix")
- "amount": string or null (the total amount charged, as a decimal number without currency symbol)
- "currency": string (3-letter currency code like "EUR", "USD", "GBP". Default to "EUR" if unclear)
- "invoice_date": string or null (the invoice/billing date in YYYY-MM-DD format)

Email subject: %s

Invoice/receipt text:
%s

Example response:
{"provider": "Spotify", "amount": "9.99", "currency": "EUR", "invoice_date": "2024-03-01"}`,
		emailSubject, truncate(text, maxTextLength))
}

func buildBodyPrompt(body, emailSubject, providerName string) string {
	return fmt.Sprintf(`You are an invoice data extraction assistant. This email from %s may describe a charge or subscription payment. Extract the billing information from the email body.
Return ONLY a valid JSON object with no additional text or markdown formatting.

Required fields:
- "provider": string (the company/service name; use %q if the body does not say otherwise)
- "amount": string or null (the total amount charged, as a decimal number without currency symbol)
- "currency": string (3-letter currency code like "EUR", "USD", "GBP". Default to "EUR" if unclear)
- "invoice_date": string or null (the billing date in YYYY-MM-DD format)

Email subject: %s

Email body:
%s

Example response:
{"provider": %q, "amount": "9.99", "currency": "EUR", "invoice_date": "2024-03-01"}`,
		providerName, providerName, emailSubject, truncate(body, maxTextLength), providerName)
}

// parseInvoiceResponse decodes the model output, tolerating markdown fences
// and malformed fields. It never fails: unusable output becomes an empty
// record so the caller can still persist the message.
func parseInvoiceResponse(response string) *InvoiceData {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var ir invoiceResponse
	if err := json.Unmarshal([]byte(response), &ir); err != nil {
		return emptyData()
	}

	data := &InvoiceData{
		Provider: ir.Provider,
		Currency: strings.ToUpper(strings.TrimSpace(ir.Currency)),
	}
	if data.Provider == "" {
		data.Provider = UnknownProvider
	}
	if _, ok := models.SupportedCurrencies[data.Currency]; !ok {
		data.Currency = models.DefaultCurrency
	}

	if ir.Amount != nil && *ir.Amount != "" && *ir.Amount != "0" {
		if amount, err := decimal.NewFromString(*ir.Amount); err == nil && amount.IsPositive() {
			data.Amount = amount
		}
	}

	if ir.InvoiceDate != nil && *ir.InvoiceDate != "" {
		if date, err := time.Parse("2006-01-02", *ir.InvoiceDate); err == nil {
			data.Date = date
		}
	}

	return data
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
