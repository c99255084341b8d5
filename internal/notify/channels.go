/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package notify implements notification delivery to external channels.
// The relay publishes connection incidents (errors, disconnects); the
// notification system routes them to Slack-compatible webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Channel is the interface for all notification backends.
type Channel interface {
	// Send delivers a notification. Returns an error if delivery fails.
	Send(ctx context.Context, msg Message) error

	// Type returns the channel type name.
	Type() string
}

// Message is a notification to be delivered.
type Message struct {
	Severity  string // info, warning, critical
	Title     string
	Body      string
	Timestamp time.Time
}

// --- Webhook ---

// WebhookChannel posts notifications to a Slack-compatible webhook.
type WebhookChannel struct {
	URL    string
	client *http.Client
}

// NewWebhookChannel creates a webhook notification channel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookChannel) Type() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	emoji := severityEmoji(msg.Severity)
	text := fmt.Sprintf("%s *[%s] %s*\n%s", emoji, strings.ToUpper(msg.Severity), msg.Title, msg.Body)

	payload := map[string]interface{}{
		"text": text,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "🚨"
	case "warning":
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// --- Notifier ---

// Notifier fans a message out to all configured channels. Delivery failures
// are logged, never propagated; notifications are best-effort.
type Notifier struct {
	channels []Channel
	log      logr.Logger
}

// NewNotifier creates a notifier over the given channels.
func NewNotifier(log logr.Logger, channels ...Channel) *Notifier {
	return &Notifier{channels: channels, log: log}
}

// Send delivers msg to every channel.
func (n *Notifier) Send(ctx context.Context, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	for _, ch := range n.channels {
		if err := ch.Send(ctx, msg); err != nil {
			n.log.Error(err, "notification delivery failed",
				"channel", ch.Type(),
				"severity", msg.Severity,
				"title", msg.Title,
			)
		}
	}
}
