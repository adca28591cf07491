// Command examcheck fetches the current notices once and emails any recent
// 6th semester exam form notice. It keeps no state between runs.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"notice-notifier/config"
	"notice-notifier/email"
	"notice-notifier/filter"
	"notice-notifier/pipeline"
	"notice-notifier/source"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	provider, err := email.NewProvider(ctx, cfg.EmailProvider, cfg.BrevoAPIKey, cfg.GoogleCredentialsJSON, logger)
	if err != nil {
		logger.Error("Failed to initialize email provider", "error", err)
		os.Exit(1)
	}

	timeFilter := filter.NewTimeFilter(time.Now(), cfg.MaxAge)
	logger.Info("Checking for exam form notices", "cutoff", timeFilter.Cutoff().Format(time.RFC3339))

	runner := pipeline.New(
		source.New(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.PrimaryURL, cfg.SecondaryURL, cfg.APIKey, logger),
		[]filter.Predicate{timeFilter, filter.NewContentFilter()},
		nil,
		email.New(provider, logger, cfg.DownloadBaseURL, cfg.EmailFrom, cfg.EmailFromName, cfg.EmailTo),
		pipeline.ModeNormal,
		logger,
	)

	res, err := runner.Run(ctx)
	if err != nil {
		if source.IsHTTPStatusError(err) {
			logger.Error("Exam form check failed: upstream notice API returned an error status", "error", err)
		} else {
			logger.Error("Exam form check failed", "error", err)
		}
		os.Exit(1)
	}
	if res.Notified == 0 {
		logger.Info("No recent exam form notice found")
	}
}
