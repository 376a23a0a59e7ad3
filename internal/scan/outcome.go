package scan

import (
	"errors"
	"fmt"
)

// ErrNoMailbox indicates a scan was requested with no linked mailbox.
var ErrNoMailbox = errors.New("no linked mailbox")

// ErrProviderNotFound indicates a scoped scan named an unknown provider.
var ErrProviderNotFound = errors.New("provider not found")

// ReconnectRequiredError indicates a mailbox's grant was revoked or expired
// mid-scan. The scan stops; work finished before the failure is preserved
// in the accompanying summary.
type ReconnectRequiredError struct {
	Email string
	Err   error
}

func (e *ReconnectRequiredError) Error() string {
	return fmt.Sprintf("mailbox %s requires reconnection: %v", e.Email, e.Err)
}

func (e *ReconnectRequiredError) Unwrap() error {
	return e.Err
}

// Summary reports what one scan run accomplished. Processed counts newly
// stored invoices, Skipped counts already-known messages, and Errors
// collects soft failures that did not stop the run.
type Summary struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

func (s *Summary) addError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}
