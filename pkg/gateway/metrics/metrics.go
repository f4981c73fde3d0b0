// Package metrics holds the relay server's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revolt_voice_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "revolt_voice_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "revolt_voice_active_connections",
			Help: "Number of open relay connections",
		},
	)

	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revolt_voice_envelopes_total",
			Help: "Relay envelopes by direction and type",
		},
		[]string{"direction", "type"},
	)

	DroppedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revolt_voice_dropped_messages_total",
			Help: "Inbound frames dropped without a reply",
		},
		[]string{"reason"},
	)

	ChatSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revolt_voice_chat_sessions_total",
			Help: "Chat sessions started",
		},
	)

	ProviderLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revolt_voice_provider_latency_seconds",
			Help:    "Language model reply latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revolt_voice_provider_errors_total",
			Help: "Language model failures by code",
		},
		[]string{"code"},
	)
)

// Direction label values.
const (
	In  = "in"
	Out = "out"
)

// Drop reason label values.
const (
	DropMalformed = "malformed"
	DropNoSession = "no_session"
	DropBinary    = "binary"
	DropRateLimit = "rate_limited"
)
