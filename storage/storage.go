// Package storage persists which notices have already been alerted on.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/googleapi"

	"notice-notifier/pkg/notifier"
)

// errNotFound is returned when a record does not exist.
var errNotFound = errors.New("storage: object doesn't exist")

// errExists is returned when creating a record that is already stored.
var errExists = errors.New("storage: object already exists")

// Store keeps Known-Sent records in a Cloud Storage bucket or a local directory,
// one JSON document per notice id. It also acts as the persistence filter: after
// Preload, Check rejects every notice already recorded.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	known     map[notifier.NoticeID]bool
	now       func() time.Time
	openFile  func(name string, flag int, perm os.FileMode) (*os.File, error)
	localPath string
	bucket    string
}

// New creates a new store. When localPath is set the bucket is ignored.
// The store takes ownership of client and closes it in Close.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		known:     make(map[notifier.NoticeID]bool),
		now:       time.Now,
		openFile:  os.OpenFile,
		localPath: localPath,
		bucket:    bucket,
	}
}

// RecordKey generates a stable object name for a notice id.
// Ids are opaque, so they are hashed to keep the key path-safe.
func RecordKey(id notifier.NoticeID) string {
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("sent-%s.json", hex.EncodeToString(h[:]))
}

// Init opens the store.
func (s *Store) Init(ctx context.Context) error {
	if s.localPath != "" {
		if err := os.MkdirAll(s.localPath, 0o755); err != nil {
			return fmt.Errorf("create local storage directory: %w", err)
		}
		s.logger.Info("Using local storage", "path", s.localPath)
		return nil
	}

	if s.client == nil || s.bucket == "" {
		return errors.New("storage client and bucket are required")
	}
	err := s.withRetry(ctx, "init", s.bucket, func() error {
		_, attrErr := s.client.Bucket(s.bucket).Attrs(ctx)
		if errors.Is(attrErr, storage.ErrBucketNotExist) {
			return retry.Unrecoverable(attrErr)
		}
		return attrErr
	})
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("Using Cloud Storage", "bucket", s.bucket)
	return nil
}

// Preload looks up which of the given notices are already recorded.
// Any lookup failure other than "not found" is returned.
func (s *Store) Preload(ctx context.Context, notices []*notifier.Notice) error {
	var found int
	for _, n := range notices {
		exists, err := s.exists(ctx, RecordKey(n.ID))
		if err != nil {
			return fmt.Errorf("look up notice %s: %w", n.ID, err)
		}
		if exists {
			s.known[n.ID] = true
			found++
		}
	}

	s.logger.Info("Known-sent records preloaded", "checked", len(notices), "known", found)
	return nil
}

// Name implements filter.Predicate.
func (*Store) Name() string { return "persistence" }

// Check implements filter.Predicate. It reports whether n has not been sent yet.
func (s *Store) Check(n *notifier.Notice) bool {
	return !s.known[n.ID]
}

// SaveSent records the notices as sent and returns how many were written.
// Individual failures are logged and skipped. A notice that is already stored
// counts as known but not as written. The only retries are the bounded Cloud
// Storage client retries inside a single object write.
func (s *Store) SaveSent(ctx context.Context, notices []*notifier.Notice) int {
	var saved, failed int
	for _, n := range notices {
		rec := notifier.NewSentRecord(n, s.now())
		err := s.create(ctx, RecordKey(n.ID), rec)
		switch {
		case err == nil:
			s.known[n.ID] = true
			saved++
		case errors.Is(err, errExists):
			s.logger.Info("Notice already recorded", "notice_id", n.ID)
			s.known[n.ID] = true
		default:
			s.logger.Warn("Failed to record notice", "notice_id", n.ID, "title", n.Title, "error", err)
			failed++
		}
	}

	s.logger.Info("Sent notices recorded", "requested", len(notices), "saved", saved, "failed", failed)
	return saved
}

// load reads the record for a notice id.
func (s *Store) load(ctx context.Context, id notifier.NoticeID) (*notifier.SentRecord, error) {
	key := RecordKey(id)

	var data []byte
	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		missing := false
		err := s.withRetry(ctx, "load", key, func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					missing = true
					return retry.Unrecoverable(openErr)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		})
		if missing {
			return nil, errNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
	}

	var rec notifier.SentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// Close releases the storage client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

// isNotFound checks if an error indicates a record was not found.
func isNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	if s.localPath != "" {
		_, err := os.Stat(filepath.Join(s.localPath, key))
		if err == nil {
			return true, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat local record: %w", err)
	}

	missing := false
	err := s.withRetry(ctx, "exists", key, func() error {
		_, attrErr := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
		if errors.Is(attrErr, storage.ErrObjectNotExist) {
			missing = true
			return retry.Unrecoverable(attrErr)
		}
		return attrErr
	})
	if missing {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat after retries: %w", err)
	}
	return true, nil
}

// create writes rec under key unless the key already exists.
func (s *Store) create(ctx context.Context, key string, rec *notifier.SentRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if s.localPath != "" {
		f, err := s.openFile(filepath.Join(s.localPath, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				return errExists
			}
			return fmt.Errorf("create local record: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return fmt.Errorf("write local record: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close local record: %w", err)
		}
		return nil
	}

	exists := false
	err = s.withRetry(ctx, "save", key, func() error {
		obj := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
		w := obj.NewWriter(ctx)
		w.ContentType = "application/json"
		if _, writeErr := w.Write(data); writeErr != nil {
			if closeErr := w.Close(); closeErr != nil {
				s.logger.Warn("Failed to close writer after error", "error", closeErr)
			}
			return fmt.Errorf("write to storage: %w", writeErr)
		}
		if closeErr := w.Close(); closeErr != nil {
			var apiErr *googleapi.Error
			if errors.As(closeErr, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
				exists = true
				return retry.Unrecoverable(closeErr)
			}
			return fmt.Errorf("close storage writer: %w", closeErr)
		}
		return nil
	})
	if exists {
		return errExists
	}
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

// withRetry runs a Cloud Storage operation with bounded retries.
func (s *Store) withRetry(ctx context.Context, op, key string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying storage operation after error", "op", op, "attempt", n, "key", key, "error", retryErr)
		}),
	)
}
