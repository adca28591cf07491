package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"notice-notifier/filter"
	"notice-notifier/pkg/notifier"
)

// Digest subjects. The subject depends only on whether any notice is critical.
const (
	CriticalSubject = "URGENT: 6th Semester Exam Form Notice"
	RegularSubject  = "New University Notices"
)

// Sender renders notice digests and sends them through a provider.
type Sender struct {
	provider    Provider
	logger      *slog.Logger
	downloadURL string // Fixed origin prefixed to each notice's content path
	fromAddr    string
	fromName    string
	to          []string
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, downloadURL, fromAddr, fromName string, to []string) *Sender {
	return &Sender{
		provider:    provider,
		logger:      logger,
		downloadURL: downloadURL,
		fromAddr:    fromAddr,
		fromName:    fromName,
		to:          to,
	}
}

// SendDigest sends one email listing all notices. It does nothing for an empty list.
// Delivery errors are returned as-is.
func (s *Sender) SendDigest(ctx context.Context, notices []*notifier.Notice) error {
	if len(notices) == 0 {
		return nil
	}

	d := s.newDigest(notices)
	body := s.formatDigestBody(d)

	text, err := plainText(body)
	if err != nil {
		s.logger.Warn("Failed to build plain-text body, sending HTML only", "error", err)
	}

	s.logger.Info("Sending digest email",
		"to", strings.Join(s.to, ","),
		"subject", d.subject,
		"notice_count", len(notices),
		"critical_count", d.criticalCount)

	msg := &Message{
		From:     s.fromAddr,
		FromName: s.fromName,
		To:       s.to,
		Subject:  d.subject,
		HTML:     body,
		Text:     text,
	}
	if err := s.provider.Send(ctx, msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

// DownloadURL builds the link for a notice. The content path is used verbatim.
func (s *Sender) DownloadURL(n *notifier.Notice) string {
	return s.downloadURL + n.Content
}

// digest is a classified batch ready for rendering.
type digest struct {
	subject       string
	notices       []*notifier.Notice
	critical      []bool
	criticalCount int
}

func (s *Sender) newDigest(notices []*notifier.Notice) *digest {
	d := &digest{
		notices:  notices,
		critical: make([]bool, len(notices)),
	}
	for i, n := range notices {
		if filter.IsCritical(n.Title) {
			d.critical[i] = true
			d.criticalCount++
		}
	}

	d.subject = RegularSubject
	if d.criticalCount > 0 {
		d.subject = CriticalSubject
	}
	return d
}

// plainText extracts a readable text rendering of an HTML body.
func plainText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(doc.Find(".banner").First().Text()))
	b.WriteString("\n\n")
	doc.Find(".notice").Each(func(_ int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find(".title").Text())
		date := strings.TrimSpace(card.Find(".date").Text())
		link, _ := card.Find("a.download").Attr("href")
		fmt.Fprintf(&b, "- %s\n  %s\n  %s\n", title, date, link)
	})
	return strings.TrimSpace(b.String()), nil
}
