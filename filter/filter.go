// Package filter decides which fetched notices are relevant.
package filter

import (
	"log/slog"
	"time"

	"notice-notifier/pkg/notifier"
)

// Predicate answers whether a single notice should be kept.
type Predicate interface {
	Name() string
	Check(n *notifier.Notice) bool
}

// TimeFilter keeps notices published at or after a fixed cutoff.
type TimeFilter struct {
	cutoff time.Time
}

// NewTimeFilter creates a filter whose cutoff is now minus maxAge.
// The cutoff is fixed for the lifetime of the filter.
func NewTimeFilter(now time.Time, maxAge time.Duration) *TimeFilter {
	return &TimeFilter{cutoff: now.Add(-maxAge)}
}

// Name implements Predicate.
func (*TimeFilter) Name() string { return "time" }

// Cutoff returns the oldest publication time that is still kept.
func (f *TimeFilter) Cutoff() time.Time { return f.cutoff }

// Check implements Predicate. Notices with an unparseable date are dropped.
func (f *TimeFilter) Check(n *notifier.Notice) bool {
	published := n.Published()
	if published.IsZero() {
		return false
	}
	return !published.Before(f.cutoff)
}

// ContentFilter keeps notices whose title classifies as critical.
type ContentFilter struct{}

// NewContentFilter creates a content filter.
func NewContentFilter() *ContentFilter {
	return &ContentFilter{}
}

// Name implements Predicate.
func (*ContentFilter) Name() string { return "content" }

// Check implements Predicate.
func (*ContentFilter) Check(n *notifier.Notice) bool {
	return IsCritical(n.Title)
}

// Chain is an ordered list of predicates combined with AND.
type Chain struct {
	predicates []Predicate
	logger     *slog.Logger
}

// NewChain creates a chain evaluating predicates in order.
func NewChain(logger *slog.Logger, predicates ...Predicate) *Chain {
	return &Chain{
		predicates: predicates,
		logger:     logger,
	}
}

// Apply returns the notices approved by every predicate, in input order.
// Evaluation for a notice stops at the first rejection.
func (c *Chain) Apply(notices []*notifier.Notice) []*notifier.Notice {
	var kept []*notifier.Notice
	for _, n := range notices {
		if rejectedBy := c.reject(n); rejectedBy != "" {
			c.logger.Debug("Notice filtered out",
				"notice_id", n.ID,
				"title", n.Title,
				"filter", rejectedBy)
			continue
		}
		kept = append(kept, n)
	}

	c.logger.Info("Filter chain applied",
		"filters", c.names(),
		"input", len(notices),
		"kept", len(kept))

	return kept
}

// reject returns the name of the first predicate rejecting n, or "" if all approve.
func (c *Chain) reject(n *notifier.Notice) string {
	for _, p := range c.predicates {
		if !p.Check(n) {
			return p.Name()
		}
	}
	return ""
}

func (c *Chain) names() []string {
	names := make([]string, len(c.predicates))
	for i, p := range c.predicates {
		names[i] = p.Name()
	}
	return names
}
