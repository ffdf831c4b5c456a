// Package detect compares a run's slots against history and keeps the new
// ones.
package detect

import (
	"log/slog"

	"resv-notifier/history"
	"resv-notifier/pkg/monitor"
)

// Detector applies the configured dedup policy.
type Detector struct {
	logger *slog.Logger
	policy monitor.Policy
}

// New creates a detector for the given policy.
func New(policy monitor.Policy, logger *slog.Logger) *Detector {
	return &Detector{policy: policy, logger: logger}
}

// Detect returns the subsequence of slots that is new under the active
// policy, in extraction order, recording each kept slot in the history
// record. Suppressed slots are never recorded, so a state-change policy
// keeps comparing against the value that was actually announced. Duplicate
// identity keys within the same run keep only the first occurrence.
func (d *Detector) Detect(slots []monitor.IdentifiedSlot, rec *history.Record) []monitor.IdentifiedSlot {
	var fresh []monitor.IdentifiedSlot
	seenThisRun := make(map[string]bool, len(slots))

	for _, slot := range slots {
		if seenThisRun[slot.Key] {
			d.logger.Debug("Duplicate identity key within run", "key", slot.Key)
			continue
		}
		seenThisRun[slot.Key] = true

		if last, ok := rec.Lookup(slot.Key); ok && d.suppress(last, slot.SeatInfo) {
			d.logger.Debug("Slot already notified, suppressing",
				"key", slot.Key,
				"last_seen", last,
				"seat_info", slot.SeatInfo,
				"policy", string(d.policy))
			continue
		}

		rec.Set(slot.Key, slot.SeatInfo)
		fresh = append(fresh, slot)
	}

	d.logger.Info("Change detection completed",
		"slots_in", len(slots),
		"new_slots", len(fresh),
		"policy", string(d.policy))
	return fresh
}

func (d *Detector) suppress(lastSeen, seatInfo string) bool {
	if d.policy == monitor.PolicyStateChange {
		return lastSeen == seatInfo
	}
	// Once-per-day: presence alone suppresses.
	return true
}
