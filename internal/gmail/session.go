package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

const mailbox = "me"

// Attachment describes one PDF attachment of a message.
type Attachment struct {
	ID       string
	Filename string
	MimeType string
}

// MessageDetails carries the headers, plain-text body and PDF attachment
// descriptors of one message.
type MessageDetails struct {
	ID          string
	Subject     string
	Date        *time.Time
	BodyText    string
	Attachments []Attachment
}

// Session is an open connection to one linked mailbox. It is created per
// orchestrator invocation and holds no state beyond the API client.
type Session struct {
	svc *gmailapi.Service
}

// Search returns up to max message ids matching the query, newest first.
func (s *Session) Search(ctx context.Context, query string, max int64) ([]string, error) {
	res, err := s.svc.Users.Messages.List(mailbox).
		Q(query).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to search messages: %w", classify(err))
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		if m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

// Message fetches one message's headers, body text and attachment
// descriptors.
func (s *Session) Message(ctx context.Context, id string) (*MessageDetails, error) {
	msg, err := s.svc.Users.Messages.Get(mailbox, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message: %w", classify(err))
	}

	details := &MessageDetails{ID: msg.Id}
	if msg.Payload == nil {
		return details, nil
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			details.Subject = header.Value
		case "date":
			if parsed, err := mail.ParseDate(header.Value); err == nil {
				parsed = parsed.UTC()
				details.Date = &parsed
			}
		}
	}

	details.Attachments = collectPDFAttachments(msg.Payload)
	details.BodyText = extractBodyText(msg.Payload)

	return details, nil
}

// Attachment downloads one attachment's raw bytes.
func (s *Session) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := s.svc.Users.Messages.Attachments.Get(mailbox, messageID, attachmentID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to download attachment: %w", classify(err))
	}

	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment: %w", err)
	}
	return data, nil
}

// collectPDFAttachments walks the MIME part tree for PDF attachments.
func collectPDFAttachments(payload *gmailapi.MessagePart) []Attachment {
	var attachments []Attachment

	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" &&
				part.MimeType == "application/pdf" {
				attachments = append(attachments, Attachment{
					ID:       part.Body.AttachmentId,
					Filename: part.Filename,
					MimeType: part.MimeType,
				})
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)

	return attachments
}

// extractBodyText returns the first text/plain body found, decoded.
// Non-multipart messages carry the body on the payload itself.
func extractBodyText(payload *gmailapi.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" &&
		strings.HasPrefix(payload.MimeType, "text/") {
		if text, err := decodeBase64URL(payload.Body.Data); err == nil {
			return string(text)
		}
	}

	var find func(parts []*gmailapi.MessagePart) string
	find = func(parts []*gmailapi.MessagePart) string {
		for _, part := range parts {
			if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				if text, err := decodeBase64URL(part.Body.Data); err == nil {
					return string(text)
				}
			}
			if len(part.Parts) > 0 {
				if text := find(part.Parts); text != "" {
					return text
				}
			}
		}
		return ""
	}
	return find(payload.Parts)
}

// decodeBase64URL decodes Gmail's base64url encoding, padded or not.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
