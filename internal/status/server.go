// Package status provides a local HTTP status endpoint for the relay.
// Used by monitoring tools, health checks, and local diagnostics.
package status

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailfeed/tailfeed/internal/connection"
)

// Info represents the relay's current status.
type Info struct {
	Version       string            `json:"version"`
	GatewayURL    string            `json:"gateway_url"`
	State         connection.State  `json:"state"`
	Error         string            `json:"error,omitempty"`
	Subscriptions map[string]string `json:"subscriptions"`
	StartedAt     time.Time         `json:"started_at"`
	Uptime        string            `json:"uptime"`
	GoVersion     string            `json:"go_version"`
	NumGoroutine  int               `json:"goroutines"`
	MemAlloc      uint64            `json:"mem_alloc_bytes"`
}

// Source exposes the connection state the status endpoint reports on.
type Source interface {
	Status() connection.Status
	Subscriptions() map[string]string
}

// Server provides a local HTTP status endpoint.
type Server struct {
	version    string
	gatewayURL string
	startedAt  time.Time
	source     Source
}

// NewServer creates a status server.
func NewServer(version, gatewayURL string, source Source) *Server {
	return &Server{
		version:    version,
		gatewayURL: gatewayURL,
		startedAt:  time.Now(),
		source:     source,
	}
}

// Handler returns an HTTP handler for the status endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.source.Status().State == connection.StateConnected {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "disconnected")
		}
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		st := s.source.Status()
		info := Info{
			Version:       s.version,
			GatewayURL:    s.gatewayURL,
			State:         st.State,
			Subscriptions: s.source.Subscriptions(),
			StartedAt:     s.startedAt,
			Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
			GoVersion:     runtime.Version(),
			NumGoroutine:  runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
		}
		info.Error = st.Err

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
