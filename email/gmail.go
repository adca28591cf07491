package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailProvider sends emails via Gmail API.
type GmailProvider struct {
	service *gmail.Service
	logger  *slog.Logger
}

// NewGmailProvider creates a new Gmail email provider.
func NewGmailProvider(service *gmail.Service, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		service: service,
		logger:  logger,
	}
}

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// createMIMEMessage builds an RFC 5322 HTML message.
func createMIMEMessage(msg *Message) string {
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = sanitizeEmailHeader(addr)
	}

	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.From != "" {
		from := sanitizeEmailHeader(msg.From)
		if msg.FromName != "" {
			from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", sanitizeEmailHeader(msg.FromName)), from)
		}
		b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	}
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeEmailHeader(msg.Subject))))
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.HTML)
	return b.String()
}

// Send sends an email via Gmail API.
func (g *GmailProvider) Send(ctx context.Context, msg *Message) error {
	encoded := base64.URLEncoding.EncodeToString([]byte(createMIMEMessage(msg)))

	g.logger.Info("Gmail API request starting",
		"method", "POST",
		"endpoint", "users.messages.send",
		"recipients", len(msg.To),
		"subject", msg.Subject)

	startTime := time.Now()
	_, err := g.service.Users.Messages.Send("me", &gmail.Message{
		Raw: encoded,
	}).Context(ctx).Do()
	duration := time.Since(startTime)

	if err != nil {
		g.logger.Warn("Gmail API send failed",
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return fmt.Errorf("gmail send: %w", err)
	}

	g.logger.Info("Gmail API request completed",
		"endpoint", "users.messages.send",
		"duration_ms", duration.Milliseconds(),
		"status", "success")

	return nil
}

// NewGmailService creates a Gmail API client. Explicit credentials are used when
// given; otherwise Application Default Credentials are used on Cloud Run.
func NewGmailService(ctx context.Context, credentialsJSON string) (*gmail.Service, error) {
	if credentialsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}
	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}
