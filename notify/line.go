package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const linePushURL = "https://api.line.me/v2/bot/message/push"

// LineProvider delivers messages via the LINE Messaging API push endpoint.
type LineProvider struct {
	channelToken string
	userID       string
	client       *http.Client
	logger       *slog.Logger
}

// NewLineProvider creates a new LINE push provider.
func NewLineProvider(channelToken, userID string, logger *slog.Logger) *LineProvider {
	return &LineProvider{
		channelToken: channelToken,
		userID:       userID,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// linePushRequest represents the LINE push message request body.
type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Deliver pushes one text message, retried with backoff on failure.
func (p *LineProvider) Deliver(ctx context.Context, text string) error {
	reqBody := linePushRequest{
		To: p.userID,
		Messages: []lineMessage{
			{Type: "text", Text: text},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			p.logger.Info("LINE API request starting",
				"method", "POST",
				"endpoint", "message/push",
				"text_length", len(text))

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, linePushURL, bytes.NewReader(jsonData))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+p.channelToken)

			resp, err := p.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				p.logger.Warn("LINE API request failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				p.logger.Warn("LINE API returned non-2xx status, will retry",
					"status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			p.logger.Info("LINE API request completed",
				"endpoint", "message/push",
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying LINE delivery after error", "attempt", n, "error", err)
		}),
	)
}
