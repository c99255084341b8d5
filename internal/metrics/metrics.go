/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for the tailfeed relay.
//
// All metrics are registered with the default registry and served on the
// status endpoint's /metrics handler.
//
// Metric naming follows Prometheus conventions:
//   - tailfeed_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsStartedTotal counts gateway sessions started, including replacements.
	SessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tailfeed_sessions_started_total",
			Help: "Total number of gateway sessions started.",
		},
	)

	// ReconnectsTotal counts reconnect attempts made by the relay policy layer.
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tailfeed_reconnects_total",
			Help: "Total reconnect attempts after a session ended.",
		},
	)

	// FramesReceivedTotal counts inbound text frames read from the socket.
	FramesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tailfeed_frames_received_total",
			Help: "Total inbound frames received from the gateway.",
		},
	)

	// FramesDroppedTotal counts inbound frames dropped, by reason.
	FramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailfeed_frames_dropped_total",
			Help: "Total inbound frames dropped without delivery.",
		},
		[]string{"reason"},
	)

	// EventsEmittedTotal counts events delivered to the event sink, by type.
	EventsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailfeed_events_emitted_total",
			Help: "Total events emitted to the event sink.",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal counts events dropped because the sink was full.
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tailfeed_events_dropped_total",
			Help: "Total events dropped due to a full event sink.",
		},
	)

	// EntriesStoredTotal counts log entries persisted, by channel.
	EntriesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailfeed_entries_stored_total",
			Help: "Total log entries written to the store.",
		},
		[]string{"channel"},
	)

	// StoreInsertSeconds is a histogram of store insert batch duration.
	StoreInsertSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tailfeed_store_insert_seconds",
			Help:    "Duration of store insert batches in seconds.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// PruneDeletedTotal counts entries removed by scheduled pruning.
	PruneDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tailfeed_prune_deleted_total",
			Help: "Total log entries deleted by pruning.",
		},
	)
)

// Frame drop reasons.
const (
	DropMalformed = "malformed"
	DropUnmatched = "unmatched"
	DropNoHandle  = "no_handle"
)

func init() {
	prometheus.MustRegister(
		SessionsStartedTotal,
		ReconnectsTotal,
		FramesReceivedTotal,
		FramesDroppedTotal,
		EventsEmittedTotal,
		EventsDroppedTotal,
		EntriesStoredTotal,
		StoreInsertSeconds,
		PruneDeletedTotal,
	)
}

// RecordInsert records a completed store insert batch.
func RecordInsert(channel string, entries int, duration time.Duration) {
	EntriesStoredTotal.WithLabelValues(channel).Add(float64(entries))
	StoreInsertSeconds.Observe(duration.Seconds())
}
