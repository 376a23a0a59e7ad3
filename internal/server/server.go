// Package server exposes the HTTP API: scan triggering, invoice and
// provider CRUD, mailbox linking and the Gmail OAuth callback.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"gitlab.com/yelinaung/billbox/internal/extract"
	"gitlab.com/yelinaung/billbox/internal/logger"
	"gitlab.com/yelinaung/billbox/internal/models"
	"gitlab.com/yelinaung/billbox/internal/scan"
)

// Scanner triggers inbox scans.
type Scanner interface {
	Run(ctx context.Context, userID uuid.UUID, providerID *uuid.UUID) (*scan.Summary, error)
}

// InvoiceStore is the invoice persistence surface the handlers use.
type InvoiceStore interface {
	Create(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
	Update(ctx context.Context, inv *models.Invoice) (bool, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// ProviderStore is the provider persistence surface the handlers use.
type ProviderStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Provider, error)
	CreateCustom(ctx context.Context, p *models.Provider) error
	UpdateCustom(ctx context.Context, p *models.Provider, userID uuid.UUID) (*models.Provider, error)
	DeleteCustom(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// AccountStore is the linked-mailbox persistence surface the handlers use.
type AccountStore interface {
	Upsert(ctx context.Context, acc *models.EmailAccount) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EmailAccount, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// ObjectStore persists uploaded PDFs and signs download links.
type ObjectStore interface {
	Store(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error)
	SignedURL(ctx context.Context, key string) (string, error)
}

// MailAuth is the OAuth surface of the mail adapter.
type MailAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserEmail(ctx context.Context, token *oauth2.Token) (string, error)
}

// Extractor re-runs extraction over uploaded documents.
type Extractor interface {
	ParseInvoice(ctx context.Context, text, emailSubject string) (*extract.InvoiceData, error)
}

// Config carries the server's dependencies.
type Config struct {
	JWTSecret string
	AppURL    string

	Scans     Scanner
	Invoices  InvoiceStore
	Providers ProviderStore
	Accounts  AccountStore
	Objects   ObjectStore
	Mail      MailAuth
	Extractor Extractor
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	router *gin.Engine
}

// New builds the router with all routes registered.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	// The OAuth callback arrives as a browser redirect and carries its
	// identity in the signed state token instead of a bearer header.
	api.GET("/gmail/callback", s.handleGmailCallback)

	auth := api.Group("", s.requireAuth())
	auth.POST("/scan", s.handleScan)

	auth.GET("/invoices", s.handleListInvoices)
	auth.POST("/invoices", s.handleCreateInvoice)
	auth.PUT("/invoices/:id", s.handleUpdateInvoice)
	auth.DELETE("/invoices/:id", s.handleDeleteInvoice)
	auth.POST("/invoices/:id/upload", s.handleUploadPDF)
	auth.GET("/invoices/:id/pdf", s.handleInvoicePDF)

	auth.GET("/providers", s.handleListProviders)
	auth.POST("/providers", s.handleCreateProvider)
	auth.PUT("/providers/:id", s.handleUpdateProvider)
	auth.DELETE("/providers/:id", s.handleDeleteProvider)

	auth.GET("/accounts", s.handleListAccounts)
	auth.DELETE("/accounts/:id", s.handleDeleteAccount)

	auth.GET("/gmail/connect", s.handleGmailConnect)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	}
}

// pathID parses the :id route parameter, answering 404 on garbage so
// malformed ids are indistinguishable from missing rows.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return uuid.Nil, false
	}
	return id, true
}
