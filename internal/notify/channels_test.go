/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"
)

func TestWebhookChannelSend(t *testing.T) {
	var received atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.Store(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	if ch.Type() != "webhook" {
		t.Fatalf("expected type webhook, got %q", ch.Type())
	}

	err := ch.Send(context.Background(), Message{
		Severity: "critical",
		Title:    "gateway session failed",
		Body:     "connection refused",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	raw, _ := received.Load().(string)
	var payload map[string]string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal webhook payload: %v", err)
	}
	if !strings.Contains(payload["text"], "CRITICAL") {
		t.Fatalf("expected severity in payload text, got %q", payload["text"])
	}
	if !strings.Contains(payload["text"], "gateway session failed") {
		t.Fatalf("expected title in payload text, got %q", payload["text"])
	}
}

func TestWebhookChannelServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	if err := ch.Send(context.Background(), Message{Severity: "info", Title: "t"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

type failingChannel struct{ calls int32 }

func (f *failingChannel) Send(ctx context.Context, msg Message) error {
	atomic.AddInt32(&f.calls, 1)
	return context.DeadlineExceeded
}

func (f *failingChannel) Type() string { return "failing" }

func TestNotifierSwallowsFailures(t *testing.T) {
	failing := &failingChannel{}
	n := NewNotifier(logr.Discard(), failing, failing)

	n.Send(context.Background(), Message{Severity: "warning", Title: "t", Body: "b"})

	if got := atomic.LoadInt32(&failing.calls); got != 2 {
		t.Fatalf("expected 2 delivery attempts, got %d", got)
	}
}
