// Package pipeline runs one fetch, filter, notify and record pass over upstream notices.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"notice-notifier/filter"
	"notice-notifier/pkg/notifier"
)

// Mode selects how a run treats relevant notices.
type Mode int

const (
	// ModeNormal notifies about relevant notices and records them as sent.
	ModeNormal Mode = iota
	// ModeSeed records every unknown notice without notifying.
	ModeSeed
	// ModeDiagnostic notifies but never records, so repeated runs find the same notices.
	ModeDiagnostic
)

func (m Mode) String() string {
	switch m {
	case ModeSeed:
		return "seed"
	case ModeDiagnostic:
		return "diagnostic"
	default:
		return "normal"
	}
}

// Fetcher retrieves the current upstream notices.
type Fetcher interface {
	Fetch(ctx context.Context) ([]*notifier.Notice, error)
}

// Persistence is the Known-Sent store. Its Check reports whether a notice is still unsent.
type Persistence interface {
	filter.Predicate
	Init(ctx context.Context) error
	Preload(ctx context.Context, notices []*notifier.Notice) error
	SaveSent(ctx context.Context, notices []*notifier.Notice) int
	Close() error
}

// Notifier delivers a digest of notices.
type Notifier interface {
	SendDigest(ctx context.Context, notices []*notifier.Notice) error
}

// Result summarizes a run.
type Result struct {
	Mode     Mode
	Fetched  int
	Relevant int
	Notified int // Notices included in the digest; 0 when no email was sent
	Recorded int // Known-Sent records written
}

// Runner executes the notice pipeline.
type Runner struct {
	fetcher     Fetcher
	predicates  []filter.Predicate
	persistence Persistence
	notifier    Notifier
	logger      *slog.Logger
	mode        Mode
}

// New creates a runner. persistence may be nil for runs that neither preload
// nor record state; predicates are applied in order and may include persistence.
func New(fetcher Fetcher, predicates []filter.Predicate, persistence Persistence, sender Notifier, mode Mode, logger *slog.Logger) *Runner {
	return &Runner{
		fetcher:     fetcher,
		predicates:  predicates,
		persistence: persistence,
		notifier:    sender,
		logger:      logger,
		mode:        mode,
	}
}

// Run performs one pass. The persistence store is always closed before returning.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = &Result{Mode: r.mode}
	r.logger.Info("Run starting", "mode", r.mode.String())

	if r.mode == ModeSeed && r.persistence == nil {
		return res, errors.New("seed mode requires a persistence store")
	}

	if r.persistence != nil {
		defer func() {
			if closeErr := r.persistence.Close(); closeErr != nil {
				r.logger.Warn("Failed to close persistence store", "error", closeErr)
			}
		}()
		if err := r.persistence.Init(ctx); err != nil {
			return res, fmt.Errorf("init persistence: %w", err)
		}
	}

	notices, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch notices: %w", err)
	}
	res.Fetched = len(notices)
	SortByDate(notices)

	if r.persistence != nil {
		if err := r.persistence.Preload(ctx, notices); err != nil {
			return res, fmt.Errorf("preload known notices: %w", err)
		}
	}

	if r.mode == ModeSeed {
		unknown := filter.NewChain(r.logger, r.persistence).Apply(notices)
		res.Recorded = r.persistence.SaveSent(ctx, unknown)
		r.logger.Info("Seed run completed",
			"fetched", res.Fetched,
			"unknown", len(unknown),
			"recorded", res.Recorded,
			"duration_ms", time.Since(start).Milliseconds())
		return res, nil
	}

	relevant := filter.NewChain(r.logger, r.predicates...).Apply(notices)
	res.Relevant = len(relevant)

	if len(relevant) == 0 {
		r.logger.Info("No new relevant notices",
			"fetched", res.Fetched,
			"duration_ms", time.Since(start).Milliseconds())
		return res, nil
	}

	for _, n := range relevant {
		r.logger.Info("Relevant notice",
			"notice_id", n.ID,
			"title", n.Title,
			"date", n.Date,
			"critical", filter.IsCritical(n.Title))
	}

	if err := r.notifier.SendDigest(ctx, relevant); err != nil {
		return res, fmt.Errorf("notify: %w", err)
	}
	res.Notified = len(relevant)

	switch {
	case r.mode == ModeDiagnostic:
		r.logger.Info("Diagnostic mode, not recording sent notices", "count", len(relevant))
	case r.persistence != nil:
		res.Recorded = r.persistence.SaveSent(ctx, relevant)
	}

	r.logger.Info("Run completed",
		"mode", r.mode.String(),
		"fetched", res.Fetched,
		"relevant", res.Relevant,
		"notified", res.Notified,
		"recorded", res.Recorded,
		"duration_ms", time.Since(start).Milliseconds())

	return res, nil
}

// SortByDate orders notices oldest first. Notices with equal or unparseable
// dates keep their relative order.
func SortByDate(notices []*notifier.Notice) {
	slices.SortStableFunc(notices, func(a, b *notifier.Notice) int {
		return a.Published().Compare(b.Published())
	})
}
