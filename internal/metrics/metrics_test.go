package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(alertsCreatedTotal.WithLabelValues("CRITICAL"))
	IncAlert("CRITICAL")
	assert.Equal(t, before+1, testutil.ToFloat64(alertsCreatedTotal.WithLabelValues("CRITICAL")))

	beforeErr := testutil.ToFloat64(inferenceErrorsTotal.WithLabelValues("timeout"))
	ObserveInference(time.Second, "timeout")
	ObserveInference(time.Millisecond, "")
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(inferenceErrorsTotal.WithLabelValues("timeout")))

	SetAnomalyRate(3, 0.25)
	assert.Equal(t, 0.25, testutil.ToFloat64(anomalyRate.WithLabelValues("3")))
}
