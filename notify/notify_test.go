package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"resv-notifier/pkg/monitor"
)

type captureProvider struct {
	delivered []string
	err       error
}

func (c *captureProvider) Deliver(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	c.delivered = append(c.delivered, text)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func identified(display string) monitor.IdentifiedSlot {
	return monitor.IdentifiedSlot{Display: display}
}

func TestSendNewSlotsEmptyListSendsNothing(t *testing.T) {
	provider := &captureProvider{}
	s := New(provider, "https://example.resv.jp/reserve", testLogger())

	if err := s.SendNewSlots(context.Background(), nil); err != nil {
		t.Fatalf("SendNewSlots() error: %v", err)
	}
	if len(provider.delivered) != 0 {
		t.Errorf("delivered %d messages, want 0", len(provider.delivered))
	}
}

func TestSendNewSlotsComposesBody(t *testing.T) {
	provider := &captureProvider{}
	s := New(provider, "https://example.resv.jp/reserve", testLogger())

	slots := []monitor.IdentifiedSlot{
		identified("11/28 (Fri) 09:30 Tour A [open]"),
		identified("11/29 (Sat) 11:00 Tour A [2 seats]"),
	}
	if err := s.SendNewSlots(context.Background(), slots); err != nil {
		t.Fatalf("SendNewSlots() error: %v", err)
	}
	if len(provider.delivered) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(provider.delivered))
	}

	body := provider.delivered[0]
	for _, part := range []string{
		"2 slots",
		"11/28 (Fri) 09:30 Tour A [open]",
		"11/29 (Sat) 11:00 Tour A [2 seats]",
		"Book: https://example.resv.jp/reserve",
	} {
		if !strings.Contains(body, part) {
			t.Errorf("body missing %q:\n%s", part, body)
		}
	}
}

func TestSendNewSlotsSingularHeader(t *testing.T) {
	provider := &captureProvider{}
	s := New(provider, "", testLogger())

	if err := s.SendNewSlots(context.Background(), []monitor.IdentifiedSlot{identified("x")}); err != nil {
		t.Fatalf("SendNewSlots() error: %v", err)
	}

	body := provider.delivered[0]
	if !strings.Contains(body, "1 slot\n") {
		t.Errorf("body should use the singular header:\n%s", body)
	}
	if strings.Contains(body, "Book:") {
		t.Error("body should omit the booking footer without a URL")
	}
}

func TestSendNewSlotsPropagatesDeliveryError(t *testing.T) {
	provider := &captureProvider{err: errors.New("channel down")}
	s := New(provider, "", testLogger())

	err := s.SendNewSlots(context.Background(), []monitor.IdentifiedSlot{identified("x")})
	if err == nil {
		t.Fatal("expected delivery error to propagate")
	}
}

func TestMockProviderNeverFails(t *testing.T) {
	m := NewMockProvider(testLogger())
	if err := m.Deliver(context.Background(), "hello"); err != nil {
		t.Errorf("Deliver() error: %v", err)
	}
}
