package email

import (
	"context"
	"log/slog"
	"strings"
)

// MockProvider logs emails instead of sending them, for local development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the email instead of sending it.
func (m *MockProvider) Send(_ context.Context, msg *Message) error {
	m.logger.Info("MOCK EMAIL",
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"body_length", len(msg.HTML))
	m.logger.Debug("MOCK EMAIL text body", "text", msg.Text)
	return nil
}
