// Package metrics exposes Prometheus counters for the booking flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors used by the service layer.  A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	reservations  *prometheus.CounterVec
	seatConflicts *prometheus.CounterVec
	compensations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinema",
			Name:      "reservations_total",
			Help:      "Reservation operations by operation and outcome.",
		}, []string{"op", "result"}),
		seatConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinema",
			Name:      "seat_update_conflicts_total",
			Help:      "Version conflicts observed while updating a session's seat counter.",
		}, []string{"op"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinema",
			Name:      "compensations_total",
			Help:      "Compensating seat updates by operation and outcome.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(m.reservations, m.seatConflicts, m.compensations)
	return m
}

// Reservation counts a create/cancel/delete outcome.
func (m *Metrics) Reservation(op, result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(op, result).Inc()
}

// SeatConflict counts one lost optimistic update on a seat counter.
func (m *Metrics) SeatConflict(op string) {
	if m == nil {
		return
	}
	m.seatConflicts.WithLabelValues(op).Inc()
}

// Compensation counts a compensating action.
func (m *Metrics) Compensation(op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(op, result).Inc()
}
