package logger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHashUserID(t *testing.T) {
	id := uuid.New()

	h1 := HashUserID(id)
	h2 := HashUserID(id)

	require.Len(t, h1, 8)
	require.Equal(t, h1, h2, "hash must be deterministic")
	require.NotEqual(t, h1, HashUserID(uuid.New()))
	require.NotContains(t, h1, id.String())
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"normal address", "alice@example.com", "al***@example.com"},
		{"short local part", "a@example.com", "a***@example.com"},
		{"two char local part", "ab@example.com", "a***@example.com"},
		{"empty", "", "<empty>"},
		{"no at sign", "not-an-email", "<invalid>"},
		{"leading at", "@example.com", "<invalid>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RedactEmail(tt.email))
		})
	}
}

func TestSanitizeSubject(t *testing.T) {
	require.Equal(t, "<empty>", SanitizeSubject(""))
	require.Equal(t, "<redacted: 3 words, 20 chars>", SanitizeSubject("Your Spotify receipt"))
}
