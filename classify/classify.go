// Package classify decides whether a slot candidate is actually bookable.
package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"resv-notifier/pkg/monitor"
)

// Seat info labels for qualitative availability symbols.
const (
	SeatOpen    = "open"
	SeatLimited = "limited"
)

var (
	// 残N ("N remaining") anchored by its keyword; never a loose digit.
	zanPattern = regexp.MustCompile(`残\s*(\d{1,3})`)
	// A per-slot icon value carrying a bare seat count.
	iconCount = regexp.MustCompile(`^(\d{1,3})$`)
)

// Classifier applies the ordered availability rules.
type Classifier struct {
	logger       *slog.Logger
	minPartySize int
}

// New creates a classifier for the given minimum party size.
func New(minPartySize int, logger *slog.Logger) *Classifier {
	return &Classifier{minPartySize: minPartySize, logger: logger}
}

// Classify evaluates one candidate. Rules are checked in order, first match
// wins:
//
//  1. a fully-open or limited symbol in the marker or local context makes
//     the slot bookable with the symbol's label,
//  2. an anchored seat count (残N in the context, or a bare icon value)
//     makes the slot bookable iff the count meets the minimum party size;
//     the count is reported either way so rejections stay loggable,
//  3. otherwise the slot is not bookable.
func (c *Classifier) Classify(cand monitor.SlotCandidate) monitor.ClassifiedSlot {
	slot := monitor.ClassifiedSlot{SlotCandidate: cand}

	if label, ok := symbolLabel(cand.Marker + " " + cand.Context); ok {
		slot.Bookable = true
		slot.SeatInfo = label
		return slot
	}

	if n, ok := seatCount(cand); ok {
		slot.SeatInfo = seatPhrase(n)
		slot.Bookable = n >= c.minPartySize
		if !slot.Bookable {
			c.logger.Debug("Seat count below minimum party size",
				"day", cand.Day,
				"time", cand.TimeLabel,
				"seats", n,
				"minimum", c.minPartySize)
		}
		return slot
	}

	return slot
}

// symbolLabel maps qualitative availability symbols to seat info labels.
// ◎ and ○ mean fully open, △ means open but limited. Sold-out symbols
// (×, 満) deliberately map to nothing.
func symbolLabel(s string) (string, bool) {
	switch {
	case strings.ContainsAny(s, "◎○"):
		return SeatOpen, true
	case strings.Contains(s, "△"):
		return SeatLimited, true
	default:
		return "", false
	}
}

// seatCount extracts a numeric seat count. The 残N pattern may appear
// anywhere in the local context since the keyword anchors it; a bare number
// is accepted only as the candidate's own marker token, so day-of-month
// digits elsewhere in a cell are never misread as a count.
func seatCount(cand monitor.SlotCandidate) (int, bool) {
	if m := zanPattern.FindStringSubmatch(cand.Context); m != nil {
		return atoi(m[1])
	}
	if m := zanPattern.FindStringSubmatch(cand.Marker); m != nil {
		return atoi(m[1])
	}
	if m := iconCount.FindStringSubmatch(strings.TrimSpace(cand.Marker)); m != nil {
		return atoi(m[1])
	}
	return 0, false
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func seatPhrase(n int) string {
	if n == 1 {
		return "1 seat"
	}
	return fmt.Sprintf("%d seats", n)
}
