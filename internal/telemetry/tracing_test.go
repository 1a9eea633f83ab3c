/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span exporter for test assertions.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestInitTraceProviderNoopWhenEmpty(t *testing.T) {
	shutdown, err := InitTraceProvider(context.Background(), "", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in        string
		target    string
		plaintext bool
	}{
		{"otel-collector:4317", "otel-collector:4317", true},
		{"http://otel-collector:4317", "otel-collector:4317", true},
		{"https://collector.example.com:4317", "collector.example.com:4317", false},
	}
	for _, tt := range tests {
		target, plaintext, err := parseEndpoint(tt.in)
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", tt.in, err)
		}
		if target != tt.target || plaintext != tt.plaintext {
			t.Errorf("parseEndpoint(%q) = %q, %v; want %q, %v", tt.in, target, plaintext, tt.target, tt.plaintext)
		}
	}
}

func TestParseEndpointErrors(t *testing.T) {
	for _, in := range []string{"grpc://collector:4317", "https://", "http://[::1"} {
		if _, _, err := parseEndpoint(in); err == nil {
			t.Errorf("parseEndpoint(%q): expected error", in)
		}
	}
}

func TestInitTraceProviderRejectsBadEndpoint(t *testing.T) {
	if _, err := InitTraceProvider(context.Background(), "ftp://collector:4317", "test"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRequestSpanAttributes(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartRequestSpan(context.Background(), "GET", "/api2/json/access/users/root@pam", "req-1")
	EndRequestSpan(span, 200, "")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "pve.request" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "pve.request")
	}
	if spans[0].SpanKind != oteltrace.SpanKindClient {
		t.Errorf("span kind = %v, want client", spans[0].SpanKind)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("successful request must not be marked as error")
	}

	found := map[string]bool{}
	for _, a := range spans[0].Attributes {
		switch string(a.Key) {
		case "http.request.method":
			found["method"] = a.Value.AsString() == "GET"
		case "url.path":
			found["path"] = a.Value.AsString() == "/api2/json/access/users/root@pam"
		case "pvego.request_id":
			found["id"] = a.Value.AsString() == "req-1"
		case "http.response.status_code":
			found["status"] = a.Value.AsInt64() == 200
		}
	}
	for _, key := range []string{"method", "path", "id", "status"} {
		if !found[key] {
			t.Errorf("missing or wrong %s attribute", key)
		}
	}
}

func TestRequestSpanTransportError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartRequestSpan(context.Background(), "POST", "/api2/json/access/ticket", "req-2")
	EndRequestSpan(span, 0, "connection refused")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "connection refused" {
		t.Errorf("status description = %q", spans[0].Status.Description)
	}
}

func TestRequestSpanHTTPErrorStatus(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartRequestSpan(context.Background(), "GET", "/api2/json/access/users/x@pve", "req-3")
	EndRequestSpan(span, 401, "")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want error for 401", spans[0].Status.Code)
	}
}

func TestNestedRequestSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := Tracer().Start(context.Background(), "pvectl.user.get")
	_, child := StartRequestSpan(ctx, "GET", "/x", "req-4")
	EndRequestSpan(child, 200, "")
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Parent.TraceID() != spans[1].SpanContext.TraceID() {
		t.Error("request span should share trace ID with parent span")
	}
	if !spans[0].Parent.SpanID().IsValid() {
		t.Error("request span should have a valid parent span ID")
	}
}
