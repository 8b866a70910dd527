// Package notification provides alert delivery to external channels
// (Telegram, webhooks, Firebase push) for position and level events.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
)

// AlertLevel is an alert's severity. Critical alerts skip throttling.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one message for a trader: an exit hit, a level cross, or a test.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Text renders the alert as a single plain-text line.
func (a Alert) Text() string {
	if a.Title == "" {
		return a.Message
	}
	if a.Message == "" {
		return a.Title
	}
	return a.Title + ": " + a.Message
}

// Notifier delivers alerts to one channel or a composition of channels.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// SendText delivers a bare text message as an info alert.
func SendText(ctx context.Context, n Notifier, text string) error {
	return n.Send(ctx, Alert{Level: AlertInfo, Message: text})
}

// LogNotifier writes alerts to the structured log. signald uses it when no
// delivery channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (*LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.InfoContext(ctx, "alert", "level", string(alert.Level), "title", alert.Title, "message", alert.Message)
	return nil
}

// Fallback tries Primary first and only uses Secondary when Primary fails.
// This is the delivery order for the relay webhook and direct Telegram.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

func (f *Fallback) Send(ctx context.Context, alert Alert) error {
	err := f.Primary.Send(ctx, alert)
	if err == nil {
		return nil
	}
	log.Printf("[notify] primary failed, falling back: %v", err)
	if serr := f.Secondary.Send(ctx, alert); serr != nil {
		return fmt.Errorf("notify: primary: %v; fallback: %w", err, serr)
	}
	return nil
}

// Multi delivers every alert to all of its notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
