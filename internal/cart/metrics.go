package cart

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Operations     *prometheus.CounterVec
	BreakerChanges *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_operations_total",
				Help: "Cart mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		BreakerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_breaker_state_changes_total",
				Help: "Catalog circuit breaker transitions by target state",
			},
			[]string{"to"},
		),
	}

	reg.MustRegister(m.Operations, m.BreakerChanges)
	return m
}

func (m *Metrics) observe(op Op, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(string(op), outcome).Inc()
}

func (m *Metrics) breakerChanged(to string) {
	if m == nil {
		return
	}
	m.BreakerChanges.WithLabelValues(to).Inc()
}
