// Package email renders and delivers notice digest emails via pluggable providers.
package email

import (
	"context"
	"fmt"
	"log/slog"
)

// Message is a single outgoing email.
type Message struct {
	From     string
	FromName string
	To       []string
	Subject  string
	HTML     string
	Text     string // Plain-text alternative; providers may ignore it
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send delivers msg once. Implementations do not retry.
	Send(ctx context.Context, msg *Message) error
}

// NewProvider creates the provider named by kind: "brevo", "gmail" or "mock".
func NewProvider(ctx context.Context, kind, brevoAPIKey, googleCredentialsJSON string, logger *slog.Logger) (Provider, error) {
	switch kind {
	case "brevo":
		return NewBrevoProvider(brevoAPIKey, logger), nil
	case "gmail":
		service, err := NewGmailService(ctx, googleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("init gmail service: %w", err)
		}
		return NewGmailProvider(service, logger), nil
	case "mock":
		logger.Info("Mock email mode enabled")
		return NewMockProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", kind)
	}
}
