package gmail

import (
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// AuthError marks a failure whose remediation is reconnecting the mailbox:
// an expired or revoked grant, or a credential missing the required scopes.
// Callers detect it with IsAuthError, never by matching message text.
type AuthError struct {
	cause error
}

// NewAuthError wraps a failure already known to be a credential problem.
func NewAuthError(cause error) *AuthError {
	return &AuthError{cause: cause}
}

func (e *AuthError) Error() string {
	return "mail credential expired or insufficient: " + e.cause.Error()
}

func (e *AuthError) Unwrap() error {
	return e.cause
}

// IsAuthError reports whether err carries an AuthError anywhere in its chain.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// classify wraps credential failures in AuthError and passes everything
// else through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	// Refresh failures: the token endpoint rejected the grant.
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode == "invalid_grant" ||
			rerr.Response != nil && rerr.Response.StatusCode == http.StatusUnauthorized {
			return &AuthError{cause: err}
		}
		return err
	}

	// API failures: 401 is always a credential problem; 403 only when the
	// structured reason says the scopes are insufficient (quota and rate
	// reasons also arrive as 403).
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return &AuthError{cause: err}
		case http.StatusForbidden:
			for _, item := range gerr.Errors {
				switch item.Reason {
				case "insufficientPermissions", "authError", "accessNotConfigured":
					return &AuthError{cause: err}
				}
			}
		}
	}

	return err
}
