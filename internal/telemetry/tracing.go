/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the tailfeed relay.
//
// Custom span attributes use the `tailfeed.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tailfeed.io/relay"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC
// exporter. If endpoint is empty, tracing is disabled (noop provider).
// Returns a shutdown function that must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		// No-op: tracing disabled
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(), // TLS configurable via env (OTEL_EXPORTER_OTLP_INSECURE)
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("tailfeed"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartSessionSpan creates the parent span for one gateway session.
func StartSessionSpan(ctx context.Context, url string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "gateway.session",
		trace.WithAttributes(
			attribute.String("tailfeed.gateway_url", url),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartInsertSpan creates a child span for a store insert batch.
func StartInsertSpan(ctx context.Context, channel string, entries int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "store.insert",
		trace.WithAttributes(
			attribute.String("tailfeed.channel", channel),
			attribute.Int("tailfeed.entries", entries),
		),
	)
}

// StartPruneSpan creates a span for a prune run.
func StartPruneSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "store.prune")
}

// EndPruneSpan enriches the prune span with its result.
func EndPruneSpan(span trace.Span, deleted int64) {
	span.SetAttributes(attribute.Int64("tailfeed.deleted", deleted))
	span.End()
}
