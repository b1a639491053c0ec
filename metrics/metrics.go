// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftpots",
		Name:      "sessions_created_total",
		Help:      "Contribution sessions created, by payment method.",
	}, []string{"method"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftpots",
		Name:      "reconciliations_total",
		Help:      "Paid-transition attempts, by confirmation channel and outcome.",
	}, []string{"channel", "outcome"})

	SignatureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftpots",
		Name:      "signature_failures_total",
		Help:      "Rejected webhook and callback signatures.",
	}, []string{"channel"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftpots",
		Name:      "webhook_events_total",
		Help:      "Verified gateway webhook deliveries, by event type.",
	}, []string{"event_type"})

	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftpots",
		Name:      "gateway_errors_total",
		Help:      "Failed payment gateway calls, by operation.",
	}, []string{"operation"})
)
