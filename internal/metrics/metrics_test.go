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

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.TransactionsConsumed.Inc()
	require.Equal(t, float64(1), counterValue(t, r.TransactionsConsumed))
}

func TestCacheRecorderIncrementsPoolDetectorCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	rec := NewCacheRecorder(r)

	rec.RecordHit()
	rec.RecordMiss()
	rec.RecordEviction()

	require.Equal(t, float64(1), counterValue(t, r.PoolDetectorCacheHits))
	require.Equal(t, float64(1), counterValue(t, r.PoolDetectorCacheMisses))
	require.Equal(t, float64(1), counterValue(t, r.PoolDetectorEvictions))
}
