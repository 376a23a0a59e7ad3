package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/billbox/internal/models"
)

func TestProviderEndpoints(t *testing.T) {
	t.Run("create derives the search query", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/api/providers", gin.H{
			"name":         "Hetzner",
			"sender_email": "hetzner.com",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, models.BuildSearchQuery("hetzner.com"), body["search_query"])
		require.Equal(t, false, body["is_default"])
	})

	t.Run("create requires name and sender", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/api/providers", gin.H{"name": "Hetzner"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list includes defaults and own rows", func(t *testing.T) {
		env := newTestEnv(t)
		env.providers.add(models.Provider{Name: "Spotify", IsDefault: true})
		otherUser := uuid.New()
		env.providers.add(models.Provider{Name: "Foreign", UserID: &otherUser})
		env.providers.add(models.Provider{Name: "Mine", UserID: &env.userID})

		rec := env.do(t, http.MethodGet, "/api/providers", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var listed []models.Provider
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
		require.Len(t, listed, 2)
	})

	t.Run("update own custom provider", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.providers.add(models.Provider{Name: "Old", SenderEmail: "old.com", UserID: &env.userID})

		rec := env.do(t, http.MethodPut, "/api/providers/"+p.ID.String(), gin.H{
			"name":         "New",
			"sender_email": "new.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "New", body["name"])
		require.Equal(t, models.BuildSearchQuery("new.com"), body["search_query"])
	})

	t.Run("update against a default is a calm no-op", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.providers.add(models.Provider{Name: "Spotify", SenderEmail: "spotify.com", IsDefault: true})

		rec := env.do(t, http.MethodPut, "/api/providers/"+p.ID.String(), gin.H{
			"name":         "Hijacked",
			"sender_email": "evil.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["success"])
		require.Equal(t, false, body["updated"])
		require.Equal(t, "Spotify", env.providers.rows[p.ID].Name)
	})

	t.Run("delete against a default is a calm no-op", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.providers.add(models.Provider{Name: "Spotify", IsDefault: true})

		rec := env.do(t, http.MethodDelete, "/api/providers/"+p.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, false, body["deleted"])
	})

	t.Run("delete own custom provider", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.providers.add(models.Provider{Name: "Mine", UserID: &env.userID})

		rec := env.do(t, http.MethodDelete, "/api/providers/"+p.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["deleted"])
	})
}

func TestAccountEndpoints(t *testing.T) {
	t.Run("list never leaks tokens", func(t *testing.T) {
		env := newTestEnv(t)
		acc := &models.EmailAccount{
			UserID:       env.userID,
			Provider:     models.MailProviderGmail,
			Email:        "user@example.com",
			AccessToken:  "super-secret-access",
			RefreshToken: "super-secret-refresh",
		}
		require.NoError(t, env.accounts.Upsert(t.Context(), acc))

		rec := env.do(t, http.MethodGet, "/api/accounts", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "user@example.com")
		require.NotContains(t, rec.Body.String(), "super-secret-access")
		require.NotContains(t, rec.Body.String(), "super-secret-refresh")
	})

	t.Run("disconnect", func(t *testing.T) {
		env := newTestEnv(t)
		acc := &models.EmailAccount{UserID: env.userID, Provider: models.MailProviderGmail, Email: "user@example.com"}
		require.NoError(t, env.accounts.Upsert(t.Context(), acc))

		rec := env.do(t, http.MethodDelete, "/api/accounts/"+acc.ID.String(), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodDelete, "/api/accounts/"+acc.ID.String(), nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
