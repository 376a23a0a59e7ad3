package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/yelinaung/billbox/internal/models"
)

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.cfg.Accounts.ListByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
		return
	}
	if accounts == nil {
		accounts = []models.EmailAccount{}
	}
	c.JSON(http.StatusOK, accounts)
}

// handleDeleteAccount disconnects a linked mailbox. Existing invoices
// keep their account reference nulled by the schema's ON DELETE SET NULL.
func (s *Server) handleDeleteAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := s.cfg.Accounts.Delete(c.Request.Context(), id, currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete account"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
