/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for PVE API sessions.
//
// Request spans follow the OTel HTTP client semantic conventions where
// applicable:
//   - http.request.method
//   - url.path
//   - http.response.status_code
//
// Custom span attributes use the `pvego.` prefix.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName  = "github.com/marcus-qen/pvego/session"
	serviceName = "pvectl"
)

// Tracer returns the tracer request spans are started from.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider exports request spans to the OTLP gRPC collector at
// endpoint and installs the provider globally. endpoint is host:port, or a
// URL whose http or https scheme selects plaintext or TLS; bare host:port is
// plaintext. An empty endpoint leaves tracing off. The returned function
// flushes pending spans and must run before exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	target, plaintext, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if plaintext {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// parseEndpoint splits a collector endpoint into the gRPC target and whether
// the connection is plaintext.
func parseEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse OTLP endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("OTLP endpoint %q has no host", endpoint)
	}
	switch u.Scheme {
	case "http":
		return u.Host, true, nil
	case "https":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("OTLP endpoint scheme %q is not http or https", u.Scheme)
	}
}

// StartRequestSpan creates a client span for one PVE API request.
func StartRequestSpan(ctx context.Context, method, path, requestID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pve.request",
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("pvego.request_id", requestID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndRequestSpan records the outcome and ends the span. errMsg is empty on
// transport success; HTTP status >= 400 marks the span as failed as well.
func EndRequestSpan(span trace.Span, statusCode int, errMsg string) {
	span.SetAttributes(attribute.Int("http.response.status_code", statusCode))
	switch {
	case errMsg != "":
		span.SetAttributes(attribute.Bool("pvego.transport_error", true))
		span.SetStatus(codes.Error, errMsg)
	case statusCode >= 400:
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
	}
	span.End()
}
