// Package history persists which slots have already been notified.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// stampFormat is the run-stamp layout on the record's first line. The stamp
// is a calendar date, not a timestamp: history is scoped to one day.
const stampFormat = "2006-01-02"

// entrySeparator splits identity key from value on each line. Identity keys
// are built from a fixed separator and never contain a tab.
const entrySeparator = "\t"

// Record is the in-memory history for one run: a run-stamp plus the
// identity keys already notified, with their last-seen values. The change
// detector exclusively owns a Record for the duration of a run.
type Record struct {
	Stamp time.Time
	seen  map[string]string
}

// NewRecord creates an empty record stamped with the given date.
func NewRecord(stamp time.Time) *Record {
	return &Record{Stamp: stamp, seen: make(map[string]string)}
}

// Lookup returns the last-seen value for an identity key.
func (r *Record) Lookup(key string) (value string, ok bool) {
	value, ok = r.seen[key]
	return value, ok
}

// Set upserts an identity key's last-seen value.
func (r *Record) Set(key, value string) {
	r.seen[key] = value
}

// Len returns the number of recorded identity keys.
func (r *Record) Len() int {
	return len(r.seen)
}

// Store persists history records to a local file or a GCS object.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string // local file path; takes precedence when set
	bucket    string
	object    string
}

// New creates a history store. When localPath is set the record lives in
// that file; otherwise it lives in the given bucket object.
func New(client *storage.Client, bucket, object, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		object:    object,
	}
}

// Load reads the persisted record. A missing, unreadable, or unrecognized
// record, or one stamped with a different date than today, loads as an
// empty record: stale history must never block notification of genuinely
// available slots.
func (s *Store) Load(ctx context.Context, today time.Time) *Record {
	data, err := s.read(ctx)
	if err != nil {
		if !isNotExist(err) {
			s.logger.Warn("History unreadable, starting empty", "error", err)
		}
		return NewRecord(today)
	}

	rec, err := decode(data)
	if err != nil {
		s.logger.Warn("History format unrecognized, starting empty", "error", err)
		return NewRecord(today)
	}

	if !sameDate(rec.Stamp, today) {
		s.logger.Info("History stamp is not today, resetting",
			"stamp", rec.Stamp.Format(stampFormat),
			"today", today.Format(stampFormat),
			"discarded_keys", rec.Len())
		return NewRecord(today)
	}

	s.logger.Info("History loaded", "keys", rec.Len(), "stamp", rec.Stamp.Format(stampFormat))
	return rec
}

// Save persists the record stamped with today's date.
func (s *Store) Save(ctx context.Context, rec *Record, today time.Time) error {
	data := encode(rec, today)

	if s.localPath != "" {
		// Write-then-rename so a crash mid-write leaves either the previous
		// record or a partial file the next Load's format check rejects.
		tmp := s.localPath + ".tmp"
		if err := os.MkdirAll(filepath.Dir(s.localPath), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write history: %w", err)
		}
		if err := os.Rename(tmp, s.localPath); err != nil {
			return fmt.Errorf("replace history: %w", err)
		}
		s.logger.Info("History saved", "path", s.localPath, "keys", rec.Len())
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying history save after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save history after retries: %w", err)
	}

	s.logger.Info("History saved", "bucket", s.bucket, "object", s.object, "keys", rec.Len())
	return nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.localPath != "" {
		return os.ReadFile(s.localPath)
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
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
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying history load after error", "attempt", n, "error", retryErr)
		}),
	)
	return data, err
}

// encode renders the record: run-stamp line, then one key/value line per
// entry.
func encode(rec *Record, today time.Time) []byte {
	var b strings.Builder
	b.WriteString(today.Format(stampFormat))
	b.WriteString("\n")
	for key, value := range rec.seen {
		b.WriteString(key)
		b.WriteString(entrySeparator)
		b.WriteString(value)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func decode(data []byte) (*Record, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, errors.New("empty record")
	}

	stamp, err := time.Parse(stampFormat, strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("parse run-stamp: %w", err)
	}

	rec := NewRecord(stamp)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, entrySeparator)
		if !found {
			return nil, fmt.Errorf("entry without separator: %q", line)
		}
		rec.seen[key] = value
	}
	return rec, nil
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, storage.ErrObjectNotExist)
}
