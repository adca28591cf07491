// Package source fetches notice listings from the upstream notice APIs.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"notice-notifier/pkg/notifier"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 10 << 20

// HTTPStatusError indicates an upstream returned a non-200 response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsHTTPStatusError checks if an error is an upstream status error.
func IsHTTPStatusError(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr)
}

// listing is the JSON envelope returned by both upstream endpoints.
type listing struct {
	Data []*notifier.Notice `json:"data"`
}

// Fetcher retrieves and merges notices from two upstream endpoints.
type Fetcher struct {
	client    *http.Client
	logger    *slog.Logger
	apiKey    string
	endpoints [2]string
}

// New creates a new fetcher for the primary and secondary endpoints.
func New(client *http.Client, primaryURL, secondaryURL, apiKey string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:    client,
		logger:    logger,
		apiKey:    apiKey,
		endpoints: [2]string{primaryURL, secondaryURL},
	}
}

// Fetch retrieves both listings concurrently and returns the merged, deduplicated notices.
// If either request fails the whole fetch fails; no partial results are returned.
func (f *Fetcher) Fetch(ctx context.Context) ([]*notifier.Notice, error) {
	var lists [2][]*notifier.Notice

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range f.endpoints {
		g.Go(func() error {
			notices, err := f.fetchListing(gctx, endpoint)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", endpoint, err)
			}
			lists[i] = notices
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(lists[0], lists[1])
	f.logger.Info("Notices fetched",
		"primary", len(lists[0]),
		"secondary", len(lists[1]),
		"unique", len(merged))

	return merged, nil
}

func (f *Fetcher) fetchListing(ctx context.Context, endpoint string) ([]*notifier.Notice, error) {
	f.logger.Info("HTTP request starting",
		"method", "GET",
		"url", endpoint,
		"purpose", "fetch_notices")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	startTime := time.Now()
	resp, err := f.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		f.logger.Warn("HTTP request failed",
			"url", endpoint,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	f.logger.Info("HTTP request completed",
		"url", endpoint,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	notices, err := parseListing(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return notices, nil
}

func parseListing(r io.Reader) ([]*notifier.Notice, error) {
	var body listing
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, err
	}
	notices := make([]*notifier.Notice, 0, len(body.Data))
	for _, n := range body.Data {
		if n == nil || n.ID == "" {
			continue
		}
		notices = append(notices, n)
	}
	return notices, nil
}

// Merge concatenates the lists and keeps one notice per id.
// When an id repeats, the last occurrence wins but keeps the position of the first.
func Merge(lists ...[]*notifier.Notice) []*notifier.Notice {
	index := make(map[notifier.NoticeID]int)
	var merged []*notifier.Notice
	for _, list := range lists {
		for _, n := range list {
			if i, ok := index[n.ID]; ok {
				merged[i] = n
				continue
			}
			index[n.ID] = len(merged)
			merged = append(merged, n)
		}
	}
	return merged
}
