// Package notify composes and delivers availability notifications.
package notify

import "context"

// Provider defines the interface for message delivery implementations.
type Provider interface {
	// Deliver pushes a plain-text message to the configured recipient.
	Deliver(ctx context.Context, text string) error
}
