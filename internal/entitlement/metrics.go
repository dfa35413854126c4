package entitlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes verification outcomes on the Prometheus registry.
type Metrics struct {
	transitions *prometheus.CounterVec
	retries     prometheus.Counter
	inFlight    prometheus.Gauge
}

// NewMetrics registers the entitlement metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfmark",
			Subsystem: "entitlement",
			Name:      "transitions_total",
			Help:      "Verification state transitions by resulting state.",
		}, []string{"state"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shelfmark",
			Subsystem: "entitlement",
			Name:      "retries_scheduled_total",
			Help:      "Automatic retries scheduled after failed verification cycles.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "shelfmark",
			Subsystem: "entitlement",
			Name:      "check_in_flight",
			Help:      "Whether a verification cycle is currently running.",
		}),
	}
}

// ObserveTransition records a state change.
func (m *Metrics) ObserveTransition(s State) {
	m.transitions.WithLabelValues(string(s.Kind)).Inc()
	switch {
	case s.Kind == KindChecking && s.Message == "":
		m.inFlight.Set(1)
	case s.Kind == KindChecking:
		m.retries.Inc()
		m.inFlight.Set(0)
	default:
		m.inFlight.Set(0)
	}
}
