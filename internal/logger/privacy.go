package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

var hashSalt string

// InitHashSalt loads the log hash salt from the environment. Call once at
// startup; in production set LOG_HASH_SALT.
func InitHashSalt() {
	hashSalt = os.Getenv("LOG_HASH_SALT")
	if hashSalt == "" {
		hashSalt = "default-salt-change-in-production"
	}
}

func init() {
	InitHashSalt()
}

// HashUserID creates a privacy-preserving hash of a user ID.
// This allows tracing a user's scans without exposing the actual ID.
func HashUserID(userID uuid.UUID) string {
	data := fmt.Sprintf("%s:%s", userID, hashSalt)
	hash := sha256.Sum256([]byte(data))
	// Return first 8 characters for readability
	return hex.EncodeToString(hash[:])[:8]
}

// RedactEmail obscures a mailbox address, keeping only a short prefix and
// the domain so operators can still tell accounts apart.
func RedactEmail(email string) string {
	if email == "" {
		return "<empty>"
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "<invalid>"
	}

	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// SanitizeSubject redacts an email subject but preserves length information
// for debugging.
func SanitizeSubject(subject string) string {
	if subject == "" {
		return "<empty>"
	}

	words := strings.Fields(subject)
	return fmt.Sprintf("<redacted: %d words, %d chars>", len(words), len(subject))
}
