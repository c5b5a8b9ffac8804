package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegistryCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SessionsStarted.WithLabelValues("evm", "leader").Inc()
	r.SessionsWon.WithLabelValues("evm").Inc()
	r.Responses.WithLabelValues("evm", "true").Inc()
	r.Rejections.WithLabelValues("evm", "data_mismatch").Inc()
	r.Finalizations.WithLabelValues("asset", "success").Inc()

	require.Equal(t, float64(1), counterValue(t, r.SessionsStarted.WithLabelValues("evm", "leader")))
	require.Equal(t, float64(1), counterValue(t, r.SessionsWon.WithLabelValues("evm")))
	require.Equal(t, float64(1), counterValue(t, r.Responses.WithLabelValues("evm", "true")))
	require.Equal(t, float64(1), counterValue(t, r.Rejections.WithLabelValues("evm", "data_mismatch")))
	require.Equal(t, float64(1), counterValue(t, r.Finalizations.WithLabelValues("asset", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
