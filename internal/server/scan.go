package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gitlab.com/yelinaung/billbox/internal/logger"
	"gitlab.com/yelinaung/billbox/internal/scan"
)

type scanRequest struct {
	ProviderID *uuid.UUID `json:"provider_id"`
}

// handleScan triggers a synchronous inbox scan for the caller. The response
// distinguishes "link a mailbox first" (400) from "relink your mailbox"
// (403, with the work finished before the credential failure).
func (s *Server) handleScan(c *gin.Context) {
	userID := currentUser(c)

	var req scanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	summary, err := s.cfg.Scans.Run(c.Request.Context(), userID, req.ProviderID)
	if err != nil {
		var reconnect *scan.ReconnectRequiredError
		switch {
		case errors.Is(err, scan.ErrNoMailbox):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no mailbox connected"})
		case errors.Is(err, scan.ErrProviderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "provider not found"})
		case errors.As(err, &reconnect):
			resp := gin.H{
				"error":     "RECONNECT_REQUIRED",
				"message":   "mailbox access expired, please reconnect your account",
				"processed": 0,
			}
			if summary != nil {
				resp["processed"] = summary.Processed
			}
			c.JSON(http.StatusForbidden, resp)
		default:
			logger.Log.Error().
				Str("user", logger.HashUserID(userID)).
				Err(err).
				Msg("Scan failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}
