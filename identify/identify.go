// Package identify resolves classified slots against calendar context and
// derives their identity keys and display strings.
package identify

import (
	"fmt"
	"strings"
	"time"

	"resv-notifier/pkg/monitor"
)

// Build resolves a classified slot. With year/month context the day is
// validated against the real calendar; an impossible date (day 30 in a
// 29-day month) returns ok=false and the slot is dropped. The identity key
// deliberately excludes seat info so a seat-count change alone never mints
// a new identity.
func Build(slot monitor.ClassifiedSlot, ym *monitor.YearMonth, cfg monitor.Config) (monitor.IdentifiedSlot, bool) {
	id := monitor.IdentifiedSlot{ClassifiedSlot: slot}

	datePart := fmt.Sprintf("day-%02d", slot.Day)
	if ym != nil {
		date := time.Date(ym.Year, time.Month(ym.Month), slot.Day, 0, 0, 0, 0, time.UTC)
		if date.Day() != slot.Day || date.Month() != time.Month(ym.Month) {
			return monitor.IdentifiedSlot{}, false
		}
		id.Date = date
		datePart = date.Format("2006-01-02")
	}

	id.Key = strings.Join([]string{datePart, slot.TimeLabel, slot.Course}, cfg.KeySeparator)
	id.Display = display(id)
	return id, true
}

// display renders the human-readable notification line, e.g.
// "11/28 (Fri) 09:30 Tour A [open]".
func display(id monitor.IdentifiedSlot) string {
	var b strings.Builder

	if !id.Date.IsZero() {
		fmt.Fprintf(&b, "%d/%d (%s)", int(id.Date.Month()), id.Date.Day(), id.Date.Format("Mon"))
	} else {
		fmt.Fprintf(&b, "day %d", id.Day)
	}
	if id.TimeLabel != monitor.TimeUnknown {
		b.WriteString(" " + id.TimeLabel)
	}
	if id.Course != "" {
		b.WriteString(" " + id.Course)
	}
	if id.SeatInfo != "" {
		b.WriteString(" [" + id.SeatInfo + "]")
	}
	return b.String()
}
