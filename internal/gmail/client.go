// Package gmail is the mail access adapter. It wraps the Gmail REST API
// behind a small session-oriented surface: a Client built once from OAuth
// application credentials, and a Session opened per linked mailbox from its
// stored tokens.
package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"gitlab.com/yelinaung/billbox/internal/models"
)

// Client holds the OAuth application configuration for Gmail access.
type Client struct {
	config *oauth2.Config
}

// NewClient creates a Gmail client for the given OAuth application.
func NewClient(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				gmailapi.GmailReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthURL returns the consent page URL. Offline access with forced consent
// guarantees a refresh token on every authorization.
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", classify(err))
	}
	return token, nil
}

// UserEmail resolves the mailbox address behind a freshly issued token.
func (c *Client) UserEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	srv, err := oauth2api.NewService(ctx,
		option.WithTokenSource(c.config.TokenSource(ctx, token)))
	if err != nil {
		return "", fmt.Errorf("unable to create userinfo service: %w", err)
	}

	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to fetch userinfo: %w", classify(err))
	}
	return info.Email, nil
}

// Open builds a mail session for a linked account from its stored
// credentials. The underlying token source refreshes expired access tokens
// transparently; a revoked grant surfaces as an AuthError on first use.
func (c *Client) Open(ctx context.Context, account models.EmailAccount) (*Session, error) {
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
	}
	if account.TokenExpiresAt != nil {
		token.Expiry = *account.TokenExpiresAt
	} else {
		// Unknown expiry: treat the access token as stale so the first
		// call goes through a refresh.
		token.Expiry = time.Now().Add(-time.Minute)
	}

	svc, err := gmailapi.NewService(ctx,
		option.WithTokenSource(c.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to create gmail service: %w", err)
	}

	return &Session{svc: svc}, nil
}
