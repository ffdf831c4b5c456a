// Package parse turns raw snapshot cells into slot candidates.
package parse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"resv-notifier/pkg/monitor"

	"golang.org/x/text/unicode/norm"
)

// markerWindow is how many runes before a time label are scanned for the
// local seat marker in free-text grid cells.
const markerWindow = 10

var (
	leadingDay = regexp.MustCompile(`^(\d{1,2})\D`)
	onlyDay    = regexp.MustCompile(`^(\d{1,2})$`)
	slashDate  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})\b`)
	kanjiDate  = regexp.MustCompile(`^(?:\d{1,2}月)?(\d{1,2})日`)
	bareCount  = regexp.MustCompile(`^\d{1,3}$`)
)

// Normalize applies NFKC compatibility folding and trims surrounding
// whitespace, so full-width digits and symbols compare equal to their ASCII
// equivalents.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// Parser extracts slot candidates from snapshots.
type Parser struct {
	cfg    monitor.Config
	logger *slog.Logger
}

// New creates a new parser.
func New(cfg monitor.Config, logger *slog.Logger) *Parser {
	return &Parser{cfg: cfg, logger: logger}
}

// Snapshot extracts all slot candidates from one snapshot, in document order.
func (p *Parser) Snapshot(snap monitor.Snapshot) []monitor.SlotCandidate {
	var cands []monitor.SlotCandidate
	for _, row := range snap.Rows {
		cands = append(cands, p.Row(row)...)
	}
	p.logger.Debug("Snapshot parsed", "url", snap.URL, "rows", len(snap.Rows), "candidates", len(cands))
	return cands
}

// Row extracts candidates from one grid row. Rows whose first cell is a
// date are treated as row-per-date/column-per-time table rows; every other
// row is a sequence of independent day-number-first grid cells.
func (p *Parser) Row(row []monitor.RawCell) []monitor.SlotCandidate {
	if len(row) == 0 {
		return nil
	}
	if day, ok := rowDay(Normalize(row[0].Text)); ok {
		return p.tableRow(day, row[1:])
	}
	var cands []monitor.SlotCandidate
	for _, cell := range row {
		cands = append(cands, p.GridCell(cell)...)
	}
	return cands
}

// tableRow maps the cells after a date cell onto the time-label roster.
// A leading cell that carries no slot content of its own is the row's
// course label.
func (p *Parser) tableRow(day int, cells []monitor.RawCell) []monitor.SlotCandidate {
	course := ""
	if len(cells) > 0 && isCourseCell(cells[0]) {
		course = Normalize(cells[0].Text)
		cells = cells[1:]
	}

	var cands []monitor.SlotCandidate
	for i, cell := range cells {
		text := Normalize(cell.Text)
		if text == "" && cell.Marker == "" {
			continue // unpopulated column
		}

		label := monitor.TimeUnknown
		if i < len(p.cfg.TimeLabels) {
			label = p.cfg.TimeLabels[i]
		}

		marker := Normalize(cell.Marker)
		if marker == "" && bareCount.MatchString(text) {
			// A cell holding nothing but a small number is the slot's own
			// seat value, anchored to this column.
			marker = text
		}

		cands = append(cands, monitor.SlotCandidate{
			Day:       day,
			TimeLabel: label,
			Course:    course,
			Marker:    marker,
			Context:   text,
		})
	}
	return cands
}

// GridCell extracts candidates from a single day-number-first cell. A cell
// contributing no identifiable day yields no candidates.
func (p *Parser) GridCell(cell monitor.RawCell) []monitor.SlotCandidate {
	text := Normalize(cell.Text)
	if text == "" {
		return nil
	}

	day, rest, ok := splitDay(text)
	if !ok {
		return nil
	}

	marker := Normalize(cell.Marker)

	var cands []monitor.SlotCandidate
	for _, label := range p.cfg.TimeLabels {
		for _, idx := range occurrences(rest, label) {
			cands = append(cands, monitor.SlotCandidate{
				Day:       day,
				TimeLabel: label,
				Marker:    marker,
				Context:   window(rest, idx),
			})
		}
	}
	if len(cands) > 0 {
		return cands
	}

	// No time label resolved: keep a single day-level candidate so a
	// bookable opening without a recognizable time still surfaces once.
	if rest == "" && marker == "" {
		return nil // bare date cell, nothing to classify
	}
	return []monitor.SlotCandidate{{
		Day:       day,
		TimeLabel: monitor.TimeUnknown,
		Marker:    marker,
		Context:   rest,
	}}
}

// splitDay peels a leading day-of-month off normalized cell text.
func splitDay(text string) (day int, rest string, ok bool) {
	m := onlyDay.FindStringSubmatch(text)
	if m == nil {
		m = leadingDay.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 31 {
		return 0, "", false
	}
	return n, strings.TrimSpace(text[len(m[1]):]), true
}

// rowDay recognizes a date-first table cell like "11/28" or "28日".
func rowDay(text string) (int, bool) {
	var dayStr string
	if m := slashDate.FindStringSubmatch(text); m != nil {
		dayStr = m[2]
	} else if m := kanjiDate.FindStringSubmatch(text); m != nil {
		dayStr = m[1]
	} else {
		return 0, false
	}
	n, err := strconv.Atoi(dayStr)
	if err != nil || n < 1 || n > 31 {
		return 0, false
	}
	return n, true
}

// isCourseCell reports whether a table cell is a free-text label rather
// than a slot column: no marker, no digits, non-empty text.
func isCourseCell(cell monitor.RawCell) bool {
	if cell.Marker != "" {
		return false
	}
	text := Normalize(cell.Text)
	if text == "" {
		return false
	}
	return !strings.ContainsAny(text, "0123456789")
}

// occurrences returns the byte offsets of every occurrence of label in text.
func occurrences(text, label string) []int {
	var idxs []int
	for from := 0; ; {
		i := strings.Index(text[from:], label)
		if i < 0 {
			return idxs
		}
		idxs = append(idxs, from+i)
		from += i + len(label)
	}
}

// window returns up to markerWindow runes immediately preceding idx.
func window(text string, idx int) string {
	runes := []rune(text[:idx])
	if len(runes) > markerWindow {
		runes = runes[len(runes)-markerWindow:]
	}
	return strings.TrimSpace(string(runes))
}
