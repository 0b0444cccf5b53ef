package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func TestAuth_Records(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Operation("login", "ok")
	m.Operation("login", "ok")
	m.Operation("login", "unauthorized")
	m.ReuseDetected()
	m.Pruned(3)
	m.Pruned(0)
	m.BreakerStateChange("google-oauth", gobreaker.StateClosed, gobreaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("login", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("login", "unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reuse))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pruned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("google-oauth")))
}

func TestAuth_NilIsSafe(t *testing.T) {
	t.Parallel()

	var m *Auth
	assert.NotPanics(t, func() {
		m.Operation("login", "ok")
		m.ReuseDetected()
		m.Pruned(1)
		m.BreakerStateChange("x", gobreaker.StateClosed, gobreaker.StateOpen)
	})
}
