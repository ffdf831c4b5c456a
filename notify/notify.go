package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"resv-notifier/pkg/monitor"
)

// Sender composes and delivers new-slot notifications through a pluggable
// provider.
type Sender struct {
	provider   Provider
	logger     *slog.Logger
	bookingURL string // link included in the message footer
}

// New creates a new notification sender.
func New(provider Provider, bookingURL string, logger *slog.Logger) *Sender {
	return &Sender{
		provider:   provider,
		logger:     logger,
		bookingURL: bookingURL,
	}
}

// SendNewSlots composes one message listing the given slots and delivers
// it. Nothing is sent for an empty list.
func (s *Sender) SendNewSlots(ctx context.Context, slots []monitor.IdentifiedSlot) error {
	if len(slots) == 0 {
		return nil
	}

	text := s.composeBody(slots)

	s.logger.Info("Sending availability notification",
		"slot_count", len(slots),
		"text_length", len(text))

	return s.provider.Deliver(ctx, text)
}

func (s *Sender) composeBody(slots []monitor.IdentifiedSlot) string {
	var b strings.Builder

	if len(slots) == 1 {
		b.WriteString("New availability: 1 slot\n\n")
	} else {
		fmt.Fprintf(&b, "New availability: %d slots\n\n", len(slots))
	}

	for _, slot := range slots {
		b.WriteString(slot.Display)
		b.WriteString("\n")
	}

	if s.bookingURL != "" {
		b.WriteString("\nBook: ")
		b.WriteString(s.bookingURL)
	}

	return b.String()
}
