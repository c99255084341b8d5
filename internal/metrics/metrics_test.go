/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getCounterVecValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getHistogramCount(h prometheus.Histogram) uint64 {
	m := &dto.Metric{}
	if c, ok := h.(prometheus.Metric); ok {
		if err := c.Write(m); err != nil {
			return 0
		}
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestRecordInsert(t *testing.T) {
	storedBefore := getCounterVecValue(EntriesStoredTotal, "logs:app")
	samplesBefore := getHistogramCount(StoreInsertSeconds)

	RecordInsert("logs:app", 3, 25*time.Millisecond)

	if got := getCounterVecValue(EntriesStoredTotal, "logs:app"); got != storedBefore+3 {
		t.Fatalf("expected stored counter %v, got %v", storedBefore+3, got)
	}
	if got := getHistogramCount(StoreInsertSeconds); got != samplesBefore+1 {
		t.Fatalf("expected %d histogram samples, got %d", samplesBefore+1, got)
	}
}

func TestFrameDropReasons(t *testing.T) {
	before := getCounterVecValue(FramesDroppedTotal, DropMalformed)
	FramesDroppedTotal.WithLabelValues(DropMalformed).Inc()
	if got := getCounterVecValue(FramesDroppedTotal, DropMalformed); got != before+1 {
		t.Fatalf("expected dropped counter %v, got %v", before+1, got)
	}
}

func TestSessionCounters(t *testing.T) {
	before := getCounterValue(SessionsStartedTotal)
	SessionsStartedTotal.Inc()
	if got := getCounterValue(SessionsStartedTotal); got != before+1 {
		t.Fatalf("expected sessions counter %v, got %v", before+1, got)
	}
}
