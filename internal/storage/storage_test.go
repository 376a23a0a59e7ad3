package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain filename", input: "invoice.pdf", expected: "invoice.pdf"},
		{name: "path traversal stripped", input: "../../etc/passwd", expected: "passwd.pdf"},
		{name: "spaces replaced", input: "march invoice.pdf", expected: "march_invoice.pdf"},
		{name: "unicode replaced", input: "rechnung märz.pdf", expected: "rechnung_m_rz.pdf"},
		{name: "missing extension appended", input: "receipt", expected: "receipt.pdf"},
		{name: "uppercase extension kept", input: "INVOICE.PDF", expected: "INVOICE.PDF"},
		{name: "empty becomes default", input: "", expected: "invoice.pdf"},
		{name: "dot only becomes default", input: ".", expected: "invoice.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}
