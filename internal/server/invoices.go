package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"gitlab.com/yelinaung/billbox/internal/extract"
	"gitlab.com/yelinaung/billbox/internal/logger"
	"gitlab.com/yelinaung/billbox/internal/models"
)

// maxUploadBytes caps uploaded PDF size.
const maxUploadBytes = 10 << 20

const dateLayout = "2006-01-02"

func (s *Server) handleListInvoices(c *gin.Context) {
	invoices, err := s.cfg.Invoices.ListByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list invoices"})
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	c.JSON(http.StatusOK, invoices)
}

type createInvoiceRequest struct {
	Provider     string           `json:"provider" binding:"required"`
	Amount       *decimal.Decimal `json:"amount"`
	Currency     string           `json:"currency"`
	InvoiceDate  *string          `json:"invoice_date"`
	EmailSubject *string          `json:"email_subject"`
	InvoiceURL   *string          `json:"invoice_url"`
}

// handleCreateInvoice records a manually entered invoice. An amount makes
// it an immediately resolved record; without one it still needs a PDF.
func (s *Server) handleCreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
		return
	}

	inv := &models.Invoice{
		UserID:       currentUser(c),
		Provider:     req.Provider,
		Currency:     normalizeCurrency(req.Currency),
		EmailSubject: req.EmailSubject,
		InvoiceURL:   req.InvoiceURL,
		Status:       models.InvoiceStatusNeedsPDF,
	}
	if req.Amount != nil && req.Amount.IsPositive() {
		inv.Amount = decimal.NullDecimal{Decimal: *req.Amount, Valid: true}
		inv.Status = models.InvoiceStatusAdded
	}
	if req.InvoiceDate != nil {
		date, err := time.Parse(dateLayout, *req.InvoiceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invoice_date must be YYYY-MM-DD"})
			return
		}
		inv.InvoiceDate = &date
	}

	if err := s.cfg.Invoices.Create(c.Request.Context(), inv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invoice"})
		return
	}
	c.JSON(http.StatusCreated, inv)
}

type updateInvoiceRequest struct {
	Provider    *string          `json:"provider"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency"`
	InvoiceDate *string          `json:"invoice_date"`
	Status      *string          `json:"status"`
}

func (s *Server) handleUpdateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status != nil && !models.ValidInvoiceStatus(*req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	userID := currentUser(c)
	inv, err := s.cfg.Invoices.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}

	if req.Provider != nil {
		inv.Provider = *req.Provider
	}
	if req.Amount != nil {
		inv.Amount = decimal.NullDecimal{Decimal: *req.Amount, Valid: true}
	}
	if req.Currency != nil {
		inv.Currency = normalizeCurrency(*req.Currency)
	}
	if req.InvoiceDate != nil {
		date, err := time.Parse(dateLayout, *req.InvoiceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invoice_date must be YYYY-MM-DD"})
			return
		}
		inv.InvoiceDate = &date
	}
	if req.Status != nil {
		inv.Status = *req.Status
	}

	updated, err := s.cfg.Invoices.Update(c.Request.Context(), inv)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update invoice"})
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleDeleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := s.cfg.Invoices.Delete(c.Request.Context(), id, currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete invoice"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleUploadPDF attaches a manually supplied PDF to an invoice, runs
// extraction over it and fills in whatever billing facts were missing.
func (s *Server) handleUploadPDF(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if header.Header.Get("Content-Type") != "application/pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF files are accepted"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	ctx := c.Request.Context()
	inv, err := s.cfg.Invoices.GetByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}

	key, err := s.cfg.Objects.Store(ctx, userID, header.Filename, data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}
	inv.PDFPath = &key
	filename := header.Filename
	inv.PDFFilename = &filename

	s.mergeExtraction(ctx, inv, data)

	if inv.HasAmount() {
		inv.Status = models.InvoiceStatusProcessed
	} else {
		inv.Status = models.InvoiceStatusPending
	}

	updated, err := s.cfg.Invoices.Update(ctx, inv)
	if err != nil || !updated {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update invoice"})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// mergeExtraction fills billing facts from the uploaded document without
// overwriting values already on the record. Extraction failure leaves the
// record as is; the PDF is already stored.
func (s *Server) mergeExtraction(ctx context.Context, inv *models.Invoice, data []byte) {
	text, err := extract.Text(data)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Unable to read uploaded PDF text")
		return
	}

	subject := ""
	if inv.EmailSubject != nil {
		subject = *inv.EmailSubject
	}
	parsed, err := s.cfg.Extractor.ParseInvoice(ctx, text, subject)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Extraction over uploaded PDF failed")
		return
	}

	if !inv.HasAmount() && parsed.HasAmount() {
		inv.Amount = decimal.NullDecimal{Decimal: parsed.Amount, Valid: true}
		inv.Currency = parsed.Currency
	}
	if inv.InvoiceDate == nil && parsed.HasDate() {
		date := parsed.Date
		inv.InvoiceDate = &date
	}
}

// handleInvoicePDF hands out a short-lived download link for a stored PDF.
func (s *Server) handleInvoicePDF(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	inv, err := s.cfg.Invoices.GetByID(c.Request.Context(), id, currentUser(c))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}
	if inv.PDFPath == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pdf stored"})
		return
	}

	url, err := s.cfg.Objects.SignedURL(c.Request.Context(), *inv.PDFPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign download link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// normalizeCurrency uppercases and validates a currency code, defaulting
// unknown codes.
func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := models.SupportedCurrencies[code]; !ok {
		return models.DefaultCurrency
	}
	return code
}
