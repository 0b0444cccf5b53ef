package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Auth holds the service-level counters. A nil *Auth records nothing.
type Auth struct {
	operations   *prometheus.CounterVec
	reuse        prometheus.Counter
	pruned       prometheus.Counter
	breakerState *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Auth {
	f := promauto.With(reg)
	return &Auth{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by name and outcome",
		}, []string{"operation", "outcome"}),
		reuse: f.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_reuse_detected_total",
			Help: "Rotated refresh tokens presented again",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_tokens_pruned_total",
			Help: "Expired refresh token rows deleted",
		}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}
}

func (a *Auth) Operation(op, outcome string) {
	if a == nil {
		return
	}
	a.operations.WithLabelValues(op, outcome).Inc()
}

func (a *Auth) ReuseDetected() {
	if a == nil {
		return
	}
	a.reuse.Inc()
}

func (a *Auth) Pruned(n int64) {
	if a == nil || n <= 0 {
		return
	}
	a.pruned.Add(float64(n))
}

func (a *Auth) BreakerStateChange(name string, _ gobreaker.State, to gobreaker.State) {
	if a == nil {
		return
	}
	a.breakerState.WithLabelValues(name).Set(stateToFloat(to))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
