package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.TreeEvaluationsTotal.WithLabelValues("login", "success").Inc()
	m.NodeErrorsTotal.WithLabelValues("social").Inc()
	m.SAMLParseErrorsTotal.WithLabelValues("ArtifactResponse", "out_of_order").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.TreeEvaluationsTotal.WithLabelValues("login", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.NodeErrorsTotal.WithLabelValues("social")))
}

func TestNewMetricsNilRegistry(t *testing.T) {
	// Nil registry skips registration but still returns usable collectors
	m := NewMetrics(nil)
	require.NotNil(t, m)
	m.PushPollsTotal.WithLabelValues("waiting").Inc()
}
