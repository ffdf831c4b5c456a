package notify

import (
	"context"
	"log/slog"
)

// MockProvider is a mock delivery provider for local development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock delivery provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Deliver logs the message instead of sending it.
func (m *MockProvider) Deliver(ctx context.Context, text string) error {
	m.logger.Info("MOCK NOTIFICATION",
		"text", text,
		"text_length", len(text))
	return nil
}
