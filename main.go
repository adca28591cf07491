// Package main implements a scheduled job that polls the university notice APIs
// and emails a digest when new relevant notices appear.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"

	"notice-notifier/config"
	"notice-notifier/email"
	"notice-notifier/filter"
	"notice-notifier/pipeline"
	"notice-notifier/source"
	noticestore "notice-notifier/storage"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	runner, err := newRunner(ctx, cfg, logger, time.Now())
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	if _, err := runner.Run(ctx); err != nil {
		if source.IsHTTPStatusError(err) {
			logger.Error("Run failed: upstream notice API returned an error status", "error", err)
		} else {
			logger.Error("Run failed", "error", err)
		}
		os.Exit(1)
	}
}

func newRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger, now time.Time) (*pipeline.Runner, error) {
	fetcher := source.New(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.PrimaryURL, cfg.SecondaryURL, cfg.APIKey, logger)

	provider, err := email.NewProvider(ctx, cfg.EmailProvider, cfg.BrevoAPIKey, cfg.GoogleCredentialsJSON, logger)
	if err != nil {
		return nil, err
	}
	sender := email.New(provider, logger, cfg.DownloadBaseURL, cfg.EmailFrom, cfg.EmailFromName, cfg.EmailTo)

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	mode, predicates := predicatesFor(cfg, store, now)
	logger.Info("Pipeline configured",
		"mode", mode.String(),
		"max_age", cfg.MaxAge.String(),
		"email_provider", cfg.EmailProvider,
		"recipients", len(cfg.EmailTo))
	for _, p := range predicates {
		if tf, ok := p.(*filter.TimeFilter); ok {
			logger.Info("Time filter cutoff", "cutoff", tf.Cutoff().Format(time.RFC3339))
		}
	}

	return pipeline.New(fetcher, predicates, store, sender, mode, logger), nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*noticestore.Store, error) {
	if cfg.LocalStorage != "" {
		logger.Info("Running with local storage", "storage_path", cfg.LocalStorage)
		return noticestore.New(nil, "", cfg.LocalStorage, logger), nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	return noticestore.New(client, cfg.StorageBucket, "", logger), nil
}

// predicatesFor picks the run mode and filter chain.
// Test mode skips the age and persistence gates and reports critical notices only.
func predicatesFor(cfg *config.Config, store filter.Predicate, now time.Time) (pipeline.Mode, []filter.Predicate) {
	switch {
	case cfg.SeedMode:
		return pipeline.ModeSeed, nil
	case cfg.TestMode:
		return pipeline.ModeDiagnostic, []filter.Predicate{filter.NewContentFilter()}
	default:
		return pipeline.ModeNormal, []filter.Predicate{filter.NewTimeFilter(now, cfg.MaxAge), store}
	}
}
