/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for PVE API sessions.
//
// All metrics are registered with the package Registry so a process embedding
// the client can expose them without touching the global default registry.
//
// Metric naming follows Prometheus conventions:
//   - pvego_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every pvego metric.
	Registry = prometheus.NewRegistry()

	// RequestsTotal counts completed API requests by method and status code.
	// Requests that never reached the server are recorded with code "0".
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvego_requests_total",
			Help: "Total number of PVE API requests by method and status code.",
		},
		[]string{"method", "code"},
	)

	// RequestDurationSeconds is a histogram of request latency by method.
	RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvego_request_duration_seconds",
			Help:    "Duration of PVE API requests in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// TransportErrorsTotal counts requests that failed below the HTTP layer.
	TransportErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvego_transport_errors_total",
			Help: "Total PVE API requests that failed at the transport layer.",
		},
		[]string{"method"},
	)

	// SessionsConnected is the number of sessions currently holding a handle.
	SessionsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pvego_sessions_connected",
			Help: "Number of PVE sessions currently connected.",
		},
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal,
		RequestDurationSeconds,
		TransportErrorsTotal,
		SessionsConnected,
	)
}

// ObserveRequest records one finished request.
func ObserveRequest(method string, statusCode int, duration time.Duration, transportErr bool) {
	RequestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	RequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
	if transportErr {
		TransportErrorsTotal.WithLabelValues(method).Inc()
	}
}

// SessionOpened records a session acquiring its handle.
func SessionOpened() {
	SessionsConnected.Inc()
}

// SessionClosed records a session releasing its handle.
func SessionClosed() {
	SessionsConnected.Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
