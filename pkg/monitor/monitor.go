// Package monitor contains the core domain types for the reservation
// availability monitor.
package monitor

import "time"

// TimeUnknown is the time label assigned when a candidate's position could
// not be mapped onto the configured roster.
const TimeUnknown = "unknown"

// Policy selects how the change detector deduplicates against history.
type Policy string

const (
	// PolicyOncePerDay suppresses a slot once its identity key has been
	// recorded, regardless of value. History resets daily.
	PolicyOncePerDay Policy = "once-per-day"
	// PolicyStateChange suppresses a slot only while its observed seat info
	// equals the last recorded value.
	PolicyStateChange Policy = "state-change"
)

// Config carries per-instance monitor settings. It is assembled once in main
// and passed into each component at construction.
type Config struct {
	MinPartySize int      // seat counts below this are not bookable
	Policy       Policy   // dedup policy
	TimeLabels   []string // ordered roster of time-of-day labels, column order
	KeySeparator string   // separator used inside identity keys
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MinPartySize: 1,
		Policy:       PolicyOncePerDay,
		TimeLabels:   []string{"09:30", "11:00", "13:30", "15:00"},
		KeySeparator: "|",
	}
}

// RawCell is one scraped text/marker unit from a snapshot. It exists only
// during a single parse pass.
type RawCell struct {
	Text     string // cell text, not yet normalized
	Marker   string // icon/marker token (img alt, marker span), may be empty
	LinkText string // first nested link's text, may be empty
}

// YearMonth is calendar context resolved from a page header region.
type YearMonth struct {
	Year  int
	Month int
}

// Snapshot is one fetched/rendered view of the availability grid.
type Snapshot struct {
	Context *YearMonth  // nil when no header was resolvable
	Rows    [][]RawCell // grid rows in document order
	URL     string      // source page, for logging and the booking link
}

// SlotCandidate is a provisional time slot extracted from a RawCell. It
// never claims bookability on its own; that is the classifier's job.
type SlotCandidate struct {
	Day       int    // day of month, 1-31, not calendar-validated
	TimeLabel string // roster label, or TimeUnknown
	Course    string // course/category label, may be empty
	Marker    string // per-slot icon/marker token, may be empty
	Context   string // local text window around the time label, may be empty
}

// ClassifiedSlot is a SlotCandidate with the classifier's verdict attached.
type ClassifiedSlot struct {
	SlotCandidate
	Bookable bool
	SeatInfo string // "open", "limited", "N seats"; empty when nothing known
}

// IdentifiedSlot is a ClassifiedSlot resolved against calendar context.
// Date is zero when no year/month context was available.
type IdentifiedSlot struct {
	ClassifiedSlot
	Date    time.Time
	Key     string // identity key; deliberately excludes seat info
	Display string // human-readable line for the notification body
}
