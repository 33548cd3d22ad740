// Package notify holds the outbound notification senders. Both channels are
// fire-and-forget from the core's perspective: the caller records the
// outcome and moves on.
package notify

import "context"

// EmailSender delivers one email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// MessageSender delivers one text message to a phone number, e.g. through a
// WhatsApp gateway.
type MessageSender interface {
	SendMessage(ctx context.Context, phone, text string) error
}
