package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matheus3301/wpphub/internal/store"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// SettingsSource provides the current webhook target.
type SettingsSource interface {
	WebhookSettings() (store.WebhookSettings, error)
}

// Webhook POSTs events as JSON to the configured URL.
type Webhook struct {
	settings SettingsSource
	client   *http.Client
	attempts int
	delay    time.Duration
}

// NewWebhook creates a webhook sink. The target is read from settings on every delivery.
func NewWebhook(settings SettingsSource, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{
		settings: settings,
		client:   client,
		attempts: 3,
		delay:    250 * time.Millisecond,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Deliver posts evt, retrying transport errors and 5xx responses with doubling delays.
// Without a configured URL it does nothing.
func (w *Webhook) Deliver(ctx context.Context, evt Event) error {
	ws, err := w.settings.WebhookSettings()
	if err != nil {
		return fmt.Errorf("load webhook settings: %w", err)
	}
	if ws.URL == "" {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	delay := w.delay
	for i := 0; i < w.attempts; i++ {
		retry, err := w.post(ctx, ws, evt.Event, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || i == w.attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, ws store.WebhookSettings, event string, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wpphub-webhook")
	req.Header.Set("X-Webhook-Event", event)
	if ws.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(ws.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	return resp.StatusCode >= 500, fmt.Errorf("webhook non-2xx: %d", resp.StatusCode)
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
