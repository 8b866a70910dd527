package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier relays alerts to an HTTP endpoint that forwards them on
// (the dashboard's backend relay). Text always holds the full rendered alert
// so a relay can forward that single field.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

type webhookPayload struct {
	Text    string     `json:"text"`
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title,omitempty"`
	Message string     `json:"message"`
	SentAt  string     `json:"ts"`
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: newHTTPClient(), now: time.Now}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	err := postJSON(ctx, w.client, w.url, webhookPayload{
		Text:    alert.Text(),
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		SentAt:  w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	log.Printf("[webhook] relayed %s alert %q", alert.Level, alert.Title)
	return nil
}
