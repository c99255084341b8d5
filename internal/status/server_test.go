package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tailfeed/tailfeed/internal/connection"
)

type fakeSource struct {
	status connection.Status
	subs   map[string]string
}

func (f *fakeSource) Status() connection.Status        { return f.status }
func (f *fakeSource) Subscriptions() map[string]string { return f.subs }

func TestHealthzConnected(t *testing.T) {
	src := &fakeSource{status: connection.Status{State: connection.StateConnected}}
	srv := httptest.NewServer(NewServer("1.0.0", "wss://gw.example.test/ws", src).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHealthzDisconnected(t *testing.T) {
	src := &fakeSource{status: connection.Status{State: connection.StateDisconnected}}
	srv := httptest.NewServer(NewServer("1.0.0", "wss://gw.example.test/ws", src).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	src := &fakeSource{
		status: connection.Status{State: connection.StateError, Err: "invalid token"},
		subs:   map[string]string{"app": "logs:app"},
	}
	srv := httptest.NewServer(NewServer("1.0.0", "wss://gw.example.test/ws", src).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if info.State != connection.StateError {
		t.Fatalf("expected error state, got %q", info.State)
	}
	if info.Error != "invalid token" {
		t.Fatalf("expected error message, got %q", info.Error)
	}
	if info.Subscriptions["app"] != "logs:app" {
		t.Fatalf("unexpected subscriptions: %v", info.Subscriptions)
	}
	if info.GoVersion == "" || info.Uptime == "" {
		t.Fatalf("expected runtime fields populated: %+v", info)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	src := &fakeSource{status: connection.Status{State: connection.StateDisconnected}}
	srv := httptest.NewServer(NewServer("1.0.0", "wss://gw.example.test/ws", src).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
