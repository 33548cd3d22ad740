package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender sends emails via the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender returns nil when no API key is configured, which
// callers treat as "email channel disabled".
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	if apiKey == "" {
		return nil
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	msg := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, body)

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
