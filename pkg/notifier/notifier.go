// Package notifier contains the core domain types for the notice notification service.
package notifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// dateLayouts are the timestamp formats accepted from upstream listings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Notice represents a single upstream announcement.
type Notice struct {
	ID      NoticeID `json:"id"`
	Title   string   `json:"title"`
	Date    string   `json:"date"`    // Source-provided timestamp
	Content string   `json:"content"` // Relative path used to build the download link
}

// Published parses Date. The zero time is returned if Date is not parseable.
func (n *Notice) Published() time.Time {
	s := strings.TrimSpace(n.Date)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NoticeID is an upstream identifier normalized to a string.
// Upstreams send it either as a JSON string or a JSON number.
type NoticeID string

// UnmarshalJSON accepts both quoted and numeric identifiers.
// A null id decodes to the empty id.
func (id *NoticeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("notice id is empty")
	}
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NoticeID(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*id = NoticeID(num.String())
	return nil
}

// SentRecord is the persisted proof that a notice already triggered a notification.
type SentRecord struct {
	SentAt   time.Time `json:"sent_at"`
	NoticeID string    `json:"notice_id"`
	Title    string    `json:"title"`
	Date     string    `json:"date"`
	URL      string    `json:"url"` // Echoes Notice.Content
}

// NewSentRecord builds the record persisted for n.
func NewSentRecord(n *Notice, sentAt time.Time) *SentRecord {
	return &SentRecord{
		SentAt:   sentAt,
		NoticeID: string(n.ID),
		Title:    n.Title,
		Date:     n.Date,
		URL:      n.Content,
	}
}
