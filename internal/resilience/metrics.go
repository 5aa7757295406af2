package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker and retry collectors, labelled by upstream target.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upstream_breaker_state",
		Help: "Breaker state per upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_breaker_transitions_total",
		Help: "Breaker state changes per upstream.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_breaker_opened_total",
		Help: "Times the breaker of an upstream opened.",
	}, []string{"target"})
	UpstreamRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_retries_total",
		Help: "Retried upstream calls by reason.",
	}, []string{"target", "reason"})

	registerOnce sync.Once
)

// MustRegisterMetrics registers the collectors with reg, or the default registerer when nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, UpstreamRetries)
	})
}
