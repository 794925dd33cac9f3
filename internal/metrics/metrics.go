// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Candidate attempt outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeNotFound  = "not_found"
	OutcomeConnError = "connection_error"
)

var (
	CandidateAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric_gateway",
		Name:      "candidate_attempts_total",
		Help:      "Backend candidate endpoint attempts by outcome.",
	}, []string{"candidate", "outcome"})

	RelayedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fabric_gateway",
		Name:      "relayed_bytes_total",
		Help:      "Bytes streamed from the backend to callers.",
	})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric_gateway",
		Name:      "requests_total",
		Help:      "Chat gateway requests by branch and result.",
	}, []string{"branch", "result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
