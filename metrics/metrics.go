// Package metrics implements dhcpc.MetricsSink with Prometheus
// collectors, for exposition via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink implements dhcpc.MetricsSink. The zero value is not usable; build
// one with New so the collectors are registered with reg.
type Sink struct {
	stateChanges       *prometheus.CounterVec
	retransmitAttempts *prometheus.CounterVec
	leaseRenewed       *prometheus.CounterVec
	leaseRebound       *prometheus.CounterVec
	leaseFailed        *prometheus.CounterVec
}

// New registers the client's collectors with reg (pass
// prometheus.DefaultRegisterer for the global registry) and returns the
// sink.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpc",
			Name:      "state_transitions_total",
			Help:      "Number of lease state machine transitions, by interface and resulting state.",
		}, []string{"iface", "state"}),
		retransmitAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpc",
			Name:      "retransmit_attempts_total",
			Help:      "Number of DISCOVER/REQUEST retransmission attempts, by interface and phase.",
		}, []string{"iface", "phase"}),
		leaseRenewed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpc",
			Name:      "lease_renewed_total",
			Help:      "Number of successful lease renewals (RENEWING -> BOUND).",
		}, []string{"iface"}),
		leaseRebound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpc",
			Name:      "lease_rebound_total",
			Help:      "Number of successful lease rebinds (REBINDING -> BOUND).",
		}, []string{"iface"}),
		leaseFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpc",
			Name:      "lease_failed_total",
			Help:      "Number of interfaces that failed to obtain or keep a lease.",
		}, []string{"iface"}),
	}
}

// StateChanged implements dhcpc.MetricsSink.
func (s *Sink) StateChanged(ifID, state string) {
	s.stateChanges.WithLabelValues(ifID, state).Inc()
}

// RetransmitAttempt implements dhcpc.MetricsSink.
func (s *Sink) RetransmitAttempt(ifID, phase string) {
	s.retransmitAttempts.WithLabelValues(ifID, phase).Inc()
}

// LeaseRenewed implements dhcpc.MetricsSink.
func (s *Sink) LeaseRenewed(ifID string) {
	s.leaseRenewed.WithLabelValues(ifID).Inc()
}

// LeaseRebound implements dhcpc.MetricsSink.
func (s *Sink) LeaseRebound(ifID string) {
	s.leaseRebound.WithLabelValues(ifID).Inc()
}

// LeaseFailed implements dhcpc.MetricsSink.
func (s *Sink) LeaseFailed(ifID string) {
	s.leaseFailed.WithLabelValues(ifID).Inc()
}
