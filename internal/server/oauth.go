package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gitlab.com/yelinaung/billbox/internal/logger"
	"gitlab.com/yelinaung/billbox/internal/models"
)

// stateTTL bounds how long a consent flow may take.
const stateTTL = 10 * time.Minute

const stateTokenType = "gmail_state"

// handleGmailConnect starts the mailbox linking flow. The OAuth state is a
// short-lived signed token carrying the caller's identity, so the
// unauthenticated callback can tie the consent back to a user without
// trusting anything the browser sends.
func (s *Server) handleGmailConnect(c *gin.Context) {
	userID := currentUser(c)

	state, err := s.signState(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start authorization"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.cfg.Mail.AuthURL(state)})
}

func (s *Server) signState(userID uuid.UUID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"typ": stateTokenType,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(stateTTL).Unix(),
	})
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// verifyState checks a state token's signature, expiry and type and
// returns the user it was issued to.
func (s *Server) verifyState(raw string) (uuid.UUID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != stateTokenType {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

// handleGmailCallback finishes the linking flow. It always responds with a
// redirect back to the app, carrying a success or error marker in the
// query string.
func (s *Server) handleGmailCallback(c *gin.Context) {
	if c.Query("error") != "" || c.Query("code") == "" {
		s.redirectWithError(c, "gmail_auth_denied")
		return
	}

	userID, err := s.verifyState(c.Query("state"))
	if err != nil {
		logger.Log.Warn().Err(err).Msg("OAuth callback with bad state token")
		s.redirectWithError(c, "gmail_callback_failed")
		return
	}

	ctx := c.Request.Context()
	token, err := s.cfg.Mail.Exchange(ctx, c.Query("code"))
	if err != nil {
		logger.Log.Warn().
			Str("user", logger.HashUserID(userID)).
			Err(err).
			Msg("OAuth code exchange failed")
		s.redirectWithError(c, "gmail_callback_failed")
		return
	}

	email, err := s.cfg.Mail.UserEmail(ctx, token)
	if err != nil {
		logger.Log.Warn().
			Str("user", logger.HashUserID(userID)).
			Err(err).
			Msg("Userinfo lookup failed")
		s.redirectWithError(c, "gmail_callback_failed")
		return
	}

	account := &models.EmailAccount{
		UserID:       userID,
		Provider:     models.MailProviderGmail,
		Email:        email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		account.TokenExpiresAt = &expiry
	}

	if err := s.cfg.Accounts.Upsert(ctx, account); err != nil {
		logger.Log.Error().
			Str("user", logger.HashUserID(userID)).
			Err(err).
			Msg("Failed to save linked mailbox")
		s.redirectWithError(c, "save_failed")
		return
	}

	logger.Log.Info().
		Str("user", logger.HashUserID(userID)).
		Str("email", logger.RedactEmail(email)).
		Msg("Mailbox linked")
	c.Redirect(http.StatusFound, s.cfg.AppURL+"/?success=gmail_connected")
}

func (s *Server) redirectWithError(c *gin.Context, marker string) {
	c.Redirect(http.StatusFound, s.cfg.AppURL+"/?error="+marker)
}
