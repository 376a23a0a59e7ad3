package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/yelinaung/billbox/internal/models"
)

func (s *Server) handleListProviders(c *gin.Context) {
	providers, err := s.cfg.Providers.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list providers"})
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	c.JSON(http.StatusOK, providers)
}

type providerRequest struct {
	Name        string  `json:"name" binding:"required"`
	SenderEmail string  `json:"sender_email" binding:"required"`
	InvoiceURL  *string `json:"invoice_url"`
	LogoURL     *string `json:"logo_url"`
}

func (s *Server) handleCreateProvider(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and sender_email are required"})
		return
	}

	userID := currentUser(c)
	p := &models.Provider{
		UserID:      &userID,
		Name:        req.Name,
		SenderEmail: req.SenderEmail,
		InvoiceURL:  req.InvoiceURL,
		LogoURL:     req.LogoURL,
	}
	if err := s.cfg.Providers.CreateCustom(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create provider"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

// handleUpdateProvider edits a custom provider. Built-in providers and
// other users' rows are silently untouched; the response still succeeds so
// the client does not need to distinguish the cases.
func (s *Server) handleUpdateProvider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and sender_email are required"})
		return
	}

	p := &models.Provider{
		ID:          id,
		Name:        req.Name,
		SenderEmail: req.SenderEmail,
		InvoiceURL:  req.InvoiceURL,
		LogoURL:     req.LogoURL,
	}
	updated, err := s.cfg.Providers.UpdateCustom(c.Request.Context(), p, currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update provider"})
		return
	}
	if updated == nil {
		// Default or foreign row: nothing changed, but the request is fine.
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": false})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteProvider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := s.cfg.Providers.DeleteCustom(c.Request.Context(), id, currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete provider"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted})
}
