// Package scraper fetches and parses reservation calendar pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"resv-notifier/parse"
	"resv-notifier/pkg/monitor"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

var (
	headerYearMonth = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月`)
	nextPeriodLink  = regexp.MustCompile(`次月|翌月|次の期間|Next`)
)

// HTTP403Error indicates a 403 Forbidden response (blocked or login
// required); it is never retried.
type HTTP403Error struct {
	URL string
}

func (e *HTTP403Error) Error() string {
	return fmt.Sprintf("HTTP 403 Forbidden: %s", e.URL)
}

// IsHTTP403Error checks if an error is an HTTP 403 error.
func IsHTTP403Error(err error) bool {
	var forbidden *HTTP403Error
	return errors.As(err, &forbidden)
}

// page is one parsed calendar page plus its onward pagination link.
type page struct {
	snapshot monitor.Snapshot
	nextURL  string
}

// Scraper fetches and parses availability calendars.
type Scraper struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a new scraper.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client: client,
		logger: logger,
	}
}

// Snapshots fetches the calendar at calendarURL plus, when the page links
// to a following period, that next period's calendar. Snapshots are
// returned in fetch order. A fetch failure of the next period degrades to
// the snapshots already collected.
func (s *Scraper) Snapshots(ctx context.Context, calendarURL string) ([]monitor.Snapshot, error) {
	first, err := s.fetchPage(ctx, calendarURL)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}

	snapshots := []monitor.Snapshot{first.snapshot}
	if first.nextURL == "" {
		return snapshots, nil
	}

	s.logger.Info("Next period link found", "url", first.nextURL)
	next, err := s.fetchPage(ctx, first.nextURL)
	if err != nil {
		s.logger.Warn("Failed to fetch next period, continuing with current period only",
			"url", first.nextURL, "error", err)
		return snapshots, nil
	}
	return append(snapshots, next.snapshot), nil
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (*page, error) {
	var result *page

	err := retry.Do(
		func() error {
			s.logger.Info("HTTP request starting",
				"method", "GET",
				"url", pageURL,
				"purpose", "fetch_calendar_page")

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			// Set essential Chrome-like headers to avoid getting blocked
			req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
			req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")
			req.Header.Set("Upgrade-Insecure-Requests", "1")
			req.Header.Set("Cache-Control", "max-age=0")

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", pageURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if resp.StatusCode == http.StatusForbidden {
				s.logger.Warn("HTTP 403 Forbidden", "url", pageURL)
				return &HTTP403Error{URL: pageURL}
			}

			if resp.StatusCode != http.StatusOK {
				s.logger.Warn("HTTP request returned non-OK status, will retry", "status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			result, err = parsePage(resp.Body, pageURL)
			if err != nil {
				s.logger.Error("Failed to parse HTML", "error", err)
				return retry.Unrecoverable(err)
			}

			period := "unknown"
			if ymctx := result.snapshot.Context; ymctx != nil {
				period = fmt.Sprintf("%04d-%02d", ymctx.Year, ymctx.Month)
			}
			s.logger.Info("Calendar page parsed successfully",
				"url", pageURL,
				"period", period,
				"rows", len(result.snapshot.Rows),
				"has_next", result.nextURL != "")

			return nil
		},
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			// Don't retry on 403 Forbidden (blocked or login required)
			return !IsHTTP403Error(err)
		}),
	)

	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}

	return result, nil
}

func parsePage(body io.Reader, pageURL string) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	snapshot := monitor.Snapshot{
		Context: headerContext(doc),
		Rows:    gridRows(doc),
		URL:     pageURL,
	}

	return &page{
		snapshot: snapshot,
		nextURL:  nextURL(doc, pageURL),
	}, nil
}

// headerContext resolves year/month from the page's header region.
func headerContext(doc *goquery.Document) *monitor.YearMonth {
	var ym *monitor.YearMonth
	doc.Find("caption, h1, h2, h3, .calendar-title, title").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		m := headerYearMonth.FindStringSubmatch(parse.Normalize(sel.Text()))
		if m == nil {
			return true
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return true
		}
		ym = &monitor.YearMonth{Year: year, Month: month}
		return false
	})
	return ym
}

// gridRows collects every table row's cells as raw text/marker units.
func gridRows(doc *goquery.Document) [][]monitor.RawCell {
	var rows [][]monitor.RawCell
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []monitor.RawCell
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			row = append(row, monitor.RawCell{
				Text:     strings.TrimSpace(td.Text()),
				Marker:   cellMarker(td),
				LinkText: strings.TrimSpace(td.Find("a").First().Text()),
			})
		})
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	return rows
}

// cellMarker extracts a cell's icon/marker token: an image's alt text, or
// the text of a marker-class span.
func cellMarker(td *goquery.Selection) string {
	if alt, ok := td.Find("img").First().Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		return strings.TrimSpace(alt)
	}
	return strings.TrimSpace(td.Find("span.mark, span.icon, .status").First().Text())
}

// nextURL finds the "next period" link and resolves it against the page URL.
func nextURL(doc *goquery.Document, pageURL string) string {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !nextPeriodLink.MatchString(strings.TrimSpace(a.Text())) {
			return true
		}
		h, ok := a.Attr("href")
		if !ok || strings.TrimSpace(h) == "" {
			return true
		}
		href = strings.TrimSpace(h)
		return false
	})
	if href == "" {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
