package resilience

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState reports the breaker state per upstream: 0=closed, 1=open, 2=half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes per upstream.
	BreakerTransitions *prometheus.CounterVec
	// OutboundAttempts counts outbound HTTP attempts per upstream and outcome.
	OutboundAttempts *prometheus.CounterVec
)

// MustRegisterMetrics registers the breaker and outbound collectors once.
// Collectors already present in reg are reused.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open.",
		}, []string{"target"}))
		BreakerTransitions = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions.",
		}, []string{"target", "from", "to"}))
		OutboundAttempts = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_attempts_total",
			Help:      "Outbound HTTP attempts by upstream and outcome.",
		}, []string{"target", "result"}))
	})
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func recordState(target string, s State) {
	if BreakerState != nil {
		BreakerState.WithLabelValues(target).Set(s.gauge())
	}
}

func recordTransition(target string, from, to State) {
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	}
}

func recordAttempt(target, result string) {
	if OutboundAttempts != nil {
		OutboundAttempts.WithLabelValues(target, result).Inc()
	}
}
