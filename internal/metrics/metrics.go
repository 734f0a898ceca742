// Package metrics provides Prometheus instrumentation for pcscproxyd.
// It exposes session, card worker, and backend-call counters and is
// served on a separate listener from the smart-card wire protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all pcscproxyd metrics.
	Namespace = "pcscproxyd"

	LabelOpcode = "opcode"
	LabelStatus = "status"
)

var (
	// SessionsActive tracks the number of live sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		},
	)

	// CardWorkersActive tracks the number of live card workers across
	// all sessions.
	CardWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "card_workers_active",
			Help:      "Number of currently running card workers",
		},
	)

	// RequestsTotal tracks requests dispatched by opcode.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total number of requests dispatched, by opcode",
		},
		[]string{LabelOpcode},
	)

	// BackendCallsTotal tracks PC/SC backend call outcomes by opcode
	// and the apiReturn status code they produced.
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backend_calls_total",
			Help:      "Total number of PC/SC backend calls, by opcode and status",
		},
		[]string{LabelOpcode, LabelStatus},
	)

	// ConnectionsRejectedTotal tracks connections the allow-list turned away.
	ConnectionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_rejected_total",
			Help:      "Total number of connections rejected by the IP allow-list",
		},
	)
)

// RecordRequest increments the dispatched-request counter for opcode.
func RecordRequest(opcode string) {
	RequestsTotal.WithLabelValues(opcode).Inc()
}

// RecordBackendCall increments the backend-call-outcome counter for
// opcode and the apiReturn status it produced, formatted as the
// pcsc.Status stringer would render it.
func RecordBackendCall(opcode, status string) {
	BackendCallsTotal.WithLabelValues(opcode, status).Inc()
}
