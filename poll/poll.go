// Package poll runs one monitoring pass: fetch, extract, diff, notify,
// persist.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"resv-notifier/classify"
	"resv-notifier/detect"
	"resv-notifier/history"
	"resv-notifier/identify"
	"resv-notifier/parse"
	"resv-notifier/pkg/monitor"
)

// Scraper interface for fetching calendar snapshots.
type Scraper interface {
	Snapshots(ctx context.Context, calendarURL string) ([]monitor.Snapshot, error)
}

// Store interface for history persistence.
type Store interface {
	Load(ctx context.Context, today time.Time) *history.Record
	Save(ctx context.Context, rec *history.Record, today time.Time) error
}

// Notifier interface for delivering new-slot notifications.
type Notifier interface {
	SendNewSlots(ctx context.Context, slots []monitor.IdentifiedSlot) error
}

// Monitor runs the extraction-and-deduplication pipeline for one calendar.
type Monitor struct {
	scraper     Scraper
	store       Store
	notifier    Notifier
	parser      *parse.Parser
	classifier  *classify.Classifier
	detector    *detect.Detector
	logger      *slog.Logger
	cfg         monitor.Config
	calendarURL string
	now         func() time.Time
}

// New creates a poll monitor.
func New(scraper Scraper, store Store, notifier Notifier, calendarURL string, cfg monitor.Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		scraper:     scraper,
		store:       store,
		notifier:    notifier,
		parser:      parse.New(cfg, logger),
		classifier:  classify.New(cfg.MinPartySize, logger),
		detector:    detect.New(cfg.Policy, logger),
		logger:      logger,
		cfg:         cfg,
		calendarURL: calendarURL,
		now:         time.Now,
	}
}

// Check performs one bounded, idempotent run. A second run against an
// unchanged calendar and the history the first run persisted produces no
// notification.
func (m *Monitor) Check(ctx context.Context) error {
	today := m.now()
	m.logger.Info("Starting availability check",
		"url", m.calendarURL,
		"policy", string(m.cfg.Policy),
		"min_party_size", m.cfg.MinPartySize)

	rec := m.store.Load(ctx, today)

	snapshots, err := m.scraper.Snapshots(ctx, m.calendarURL)
	if err != nil {
		// A run with zero snapshots produces zero new slots; the stamp is
		// still refreshed below so tomorrow's reset stays well-defined.
		m.logger.Error("Snapshot fetch failed, continuing with empty run", "error", err)
		snapshots = nil
	}

	slots := m.extract(snapshots)
	fresh := m.detector.Detect(slots, rec)

	if len(fresh) > 0 {
		// Delivery failure never rolls back history: a duplicate blast on a
		// flaky channel is worse than one lost message.
		if err := m.notifier.SendNewSlots(ctx, fresh); err != nil {
			m.logger.Error("Notification delivery failed, slots remain recorded",
				"slot_count", len(fresh),
				"error", err)
		}
	} else {
		m.logger.Info("No new availability found")
	}

	if err := m.store.Save(ctx, rec, today); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	m.logger.Info("Availability check completed",
		"snapshots", len(snapshots),
		"bookable_slots", len(slots),
		"new_slots", len(fresh))
	return nil
}

// extract runs each snapshot through parse, classify, and identify,
// concatenating bookable slots in fetch order.
func (m *Monitor) extract(snapshots []monitor.Snapshot) []monitor.IdentifiedSlot {
	var slots []monitor.IdentifiedSlot

	for _, snap := range snapshots {
		for _, cand := range m.parser.Snapshot(snap) {
			classified := m.classifier.Classify(cand)
			if !classified.Bookable {
				continue
			}

			slot, ok := identify.Build(classified, snap.Context, m.cfg)
			if !ok {
				m.logger.Debug("Slot resolves to an impossible calendar date, discarding",
					"day", classified.Day,
					"time", classified.TimeLabel)
				continue
			}

			m.logger.Info("Bookable slot found",
				"key", slot.Key,
				"seat_info", slot.SeatInfo)
			slots = append(slots, slot)
		}
	}

	return slots
}
