package detect

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"resv-notifier/history"
	"resv-notifier/pkg/monitor"
)

func testDetector(policy monitor.Policy) *Detector {
	return New(policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func slot(key, seatInfo string) monitor.IdentifiedSlot {
	return monitor.IdentifiedSlot{
		ClassifiedSlot: monitor.ClassifiedSlot{Bookable: true, SeatInfo: seatInfo},
		Key:            key,
	}
}

func emptyRecord() *history.Record {
	return history.NewRecord(time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC))
}

// TestDetectIdempotent verifies the core idempotence property: a second
// run against the history produced by the first yields nothing new.
func TestDetectIdempotent(t *testing.T) {
	d := testDetector(monitor.PolicyOncePerDay)
	rec := emptyRecord()
	run := []monitor.IdentifiedSlot{
		slot("2025-11-28|09:30|Tour A", "open"),
		slot("2025-11-28|11:00|Tour A", "2 seats"),
	}

	first := d.Detect(run, rec)
	if len(first) != 2 {
		t.Fatalf("first run kept %d slots, want 2", len(first))
	}

	second := d.Detect(run, rec)
	if len(second) != 0 {
		t.Errorf("second run kept %d slots, want 0", len(second))
	}
}

func TestDetectPreservesOrder(t *testing.T) {
	d := testDetector(monitor.PolicyOncePerDay)
	rec := emptyRecord()
	rec.Set("b", "open")

	got := d.Detect([]monitor.IdentifiedSlot{
		slot("c", "open"),
		slot("b", "open"), // suppressed
		slot("a", "open"),
	}, rec)

	if len(got) != 2 || got[0].Key != "c" || got[1].Key != "a" {
		t.Errorf("kept keys in wrong order: %v", keys(got))
	}
}

func TestDetectInRunDuplicates(t *testing.T) {
	// The same identity key from two overlapping fetches keeps only the
	// first occurrence, even under the state-change policy.
	for _, policy := range []monitor.Policy{monitor.PolicyOncePerDay, monitor.PolicyStateChange} {
		t.Run(string(policy), func(t *testing.T) {
			d := testDetector(policy)
			got := d.Detect([]monitor.IdentifiedSlot{
				slot("2025-11-28|09:30|Tour A", "1 seat"),
				slot("2025-11-28|09:30|Tour A", "3 seats"),
			}, emptyRecord())

			if len(got) != 1 {
				t.Fatalf("kept %d slots, want 1", len(got))
			}
			if got[0].SeatInfo != "1 seat" {
				t.Errorf("kept %q, want the first occurrence", got[0].SeatInfo)
			}
		})
	}
}

// TestDetectPolicies verifies a seat-info change re-triggers under
// state-change but not under once-per-day.
func TestDetectPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   monitor.Policy
		wantKept int
	}{
		{name: "once per day suppresses on any value", policy: monitor.PolicyOncePerDay, wantKept: 0},
		{name: "state change re-triggers on new value", policy: monitor.PolicyStateChange, wantKept: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDetector(tt.policy)
			rec := emptyRecord()

			if got := d.Detect([]monitor.IdentifiedSlot{slot("key", "1 seat")}, rec); len(got) != 1 {
				t.Fatalf("first observation kept %d, want 1", len(got))
			}

			got := d.Detect([]monitor.IdentifiedSlot{slot("key", "3 seats")}, rec)
			if len(got) != tt.wantKept {
				t.Errorf("after value change kept %d, want %d", len(got), tt.wantKept)
			}
		})
	}
}

func TestDetectStateChangeUnchangedValue(t *testing.T) {
	d := testDetector(monitor.PolicyStateChange)
	rec := emptyRecord()

	d.Detect([]monitor.IdentifiedSlot{slot("key", "2 seats")}, rec)
	got := d.Detect([]monitor.IdentifiedSlot{slot("key", "2 seats")}, rec)
	if len(got) != 0 {
		t.Errorf("unchanged value kept %d, want 0", len(got))
	}
}

func TestDetectRecordsOnlyNotified(t *testing.T) {
	d := testDetector(monitor.PolicyOncePerDay)
	rec := emptyRecord()
	rec.Set("suppressed", "open")

	d.Detect([]monitor.IdentifiedSlot{slot("suppressed", "limited"), slot("kept", "open")}, rec)

	if v, _ := rec.Lookup("suppressed"); v != "open" {
		t.Errorf("suppressed slot's record changed to %q; record must only be written for kept slots", v)
	}
	if _, ok := rec.Lookup("kept"); !ok {
		t.Error("kept slot was not recorded")
	}
}

func TestDetectEmptyInput(t *testing.T) {
	d := testDetector(monitor.PolicyOncePerDay)
	if got := d.Detect(nil, emptyRecord()); len(got) != 0 {
		t.Errorf("nil input kept %d slots, want 0", len(got))
	}
}

func keys(slots []monitor.IdentifiedSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Key
	}
	return out
}
