// Package alerting posts broadcast bundles to HTTP webhooks.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"vo-performance-bot/internal/transport"
)

// WebhookNotifier posts each bundle as {"content": "..."} to a chat webhook
// (Discord and Slack-compatible endpoints accept this shape).
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier constructs a webhook broadcaster.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Broadcast posts one bundle.
func (n *WebhookNotifier) Broadcast(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook responded %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	n.logger.Debug().Int("runes", len([]rune(text))).Msg("bundle posted to webhook")
	return nil
}

// Fanout broadcasts to several destinations. A single Broadcast attempts
// every destination and joins the failures. The dispatcher uses Members to
// deliver a whole report to each destination on its own.
type Fanout []transport.Broadcaster

// Members implements transport.Group.
func (f Fanout) Members() []transport.Broadcaster { return f }

// Broadcast implements transport.Broadcaster.
func (f Fanout) Broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, b := range f {
		if err := b.Broadcast(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ transport.Broadcaster = (*WebhookNotifier)(nil)
	_ transport.Group       = Fanout(nil)
)
