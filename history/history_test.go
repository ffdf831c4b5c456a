package history

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notified-slots.txt")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, "", "", path, logger)
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLoadMissingFile(t *testing.T) {
	s := testStore(t)

	rec := s.Load(context.Background(), day("2025-11-28"))
	if rec.Len() != 0 {
		t.Errorf("missing file should load empty, got %d keys", rec.Len())
	}
	if _, ok := rec.Lookup("anything"); ok {
		t.Error("lookup on empty record should report absent")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := testStore(t)
	today := day("2025-11-28")
	ctx := context.Background()

	rec := NewRecord(today)
	rec.Set("2025-11-28|09:30|Tour A", "open")
	rec.Set("2025-11-28|11:00|Tour A", "2 seats")

	if err := s.Save(ctx, rec, today); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded := s.Load(ctx, today)
	if loaded.Len() != 2 {
		t.Fatalf("loaded %d keys, want 2", loaded.Len())
	}
	if v, ok := loaded.Lookup("2025-11-28|11:00|Tour A"); !ok || v != "2 seats" {
		t.Errorf("Lookup() = (%q, %v), want (\"2 seats\", true)", v, ok)
	}
}

// TestDailyReset verifies a record stamped with another date loads as
// empty, even for keys present in the persisted mapping.
func TestDailyReset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	yesterday := day("2025-11-27")
	today := day("2025-11-28")

	rec := NewRecord(yesterday)
	rec.Set("2025-11-27|09:30|Tour A", "open")
	if err := s.Save(ctx, rec, yesterday); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded := s.Load(ctx, today)
	if loaded.Len() != 0 {
		t.Errorf("stale record should reset, got %d keys", loaded.Len())
	}
	if _, ok := loaded.Lookup("2025-11-27|09:30|Tour A"); ok {
		t.Error("key from yesterday's record should be absent after reset")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "garbage header", content: "not a date\nkey\tvalue\n"},
		{name: "entry without separator", content: "2025-11-28\nkey-without-tab\n"},
		{name: "empty file", content: ""},
		{name: "binary junk", content: "\x00\x01\x02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t)
			if err := os.WriteFile(s.localPath, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			rec := s.Load(context.Background(), day("2025-11-28"))
			if rec.Len() != 0 {
				t.Errorf("corrupt record should load empty, got %d keys", rec.Len())
			}
		})
	}
}

func TestSaveWritesStampFirst(t *testing.T) {
	s := testStore(t)
	today := day("2025-11-28")
	ctx := context.Background()

	rec := NewRecord(today)
	rec.Set("2025-11-28|09:30|Tour A", "open")
	if err := s.Save(ctx, rec, today); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(s.localPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if lines[0] != "2025-11-28" {
		t.Errorf("first line = %q, want run-stamp %q", lines[0], "2025-11-28")
	}
	if len(lines) != 2 || !strings.Contains(lines[1], "\t") {
		t.Errorf("expected one tab-separated entry line, got %q", lines[1:])
	}
}

// TestSaveReplacesAtomically checks that saving over an existing record
// leaves no temp file behind and fully replaces the content.
func TestSaveReplacesAtomically(t *testing.T) {
	s := testStore(t)
	today := day("2025-11-28")
	ctx := context.Background()

	first := NewRecord(today)
	first.Set("a", "1")
	first.Set("b", "2")
	if err := s.Save(ctx, first, today); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	second := NewRecord(today)
	second.Set("c", "3")
	if err := s.Save(ctx, second, today); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if _, err := os.Stat(s.localPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after save")
	}

	loaded := s.Load(ctx, today)
	if loaded.Len() != 1 {
		t.Errorf("loaded %d keys, want 1 (old content replaced)", loaded.Len())
	}
}

func TestRecordUpsert(t *testing.T) {
	rec := NewRecord(day("2025-11-28"))

	rec.Set("key", "1 seat")
	rec.Set("key", "3 seats")

	if rec.Len() != 1 {
		t.Errorf("len = %d, want 1", rec.Len())
	}
	if v, _ := rec.Lookup("key"); v != "3 seats" {
		t.Errorf("value = %q, want latest write", v)
	}
}
