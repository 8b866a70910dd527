package notification

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// messageSender is the subset of *messaging.Client used here.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier pushes alerts to a Firebase Cloud Messaging topic.
// Browsers and devices subscribed to the topic receive every alert.
type FCMNotifier struct {
	client messageSender
	topic  string
}

// NewFCMNotifier initializes Firebase from a service-account file.
func NewFCMNotifier(ctx context.Context, credentialsPath, topic string) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging client: %w", err)
	}
	log.Printf("[fcm] initialized, topic=%s", topic)
	return &FCMNotifier{client: client, topic: topic}, nil
}

func (f *FCMNotifier) Send(ctx context.Context, alert Alert) error {
	title := alert.Title
	if title == "" {
		title = "XRP alert"
	}
	msg := &messaging.Message{
		Topic: f.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  alert.Message,
		},
		Data: map[string]string{"level": string(alert.Level)},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if alert.Level == AlertCritical {
		msg.Android.Notification = &messaging.AndroidNotification{Priority: messaging.PriorityHigh}
	}

	id, err := f.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm: send: %w", err)
	}
	log.Printf("[fcm] sent alert %s: %s", id, alert.Text())
	return nil
}
