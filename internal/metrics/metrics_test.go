package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveCollection(t *testing.T) {
	processed := recordsTotal.WithLabelValues("emotion_records", "processed")
	failed := recordsTotal.WithLabelValues("emotion_records", "failed")
	beforeP, beforeF := counterValue(t, processed), counterValue(t, failed)

	ObserveCollection("emotion_records", 4, 1)

	assert.Equal(t, beforeP+4, counterValue(t, processed))
	assert.Equal(t, beforeF+1, counterValue(t, failed))
}

func TestObserveReport(t *testing.T) {
	failed := reportsTotal.WithLabelValues("failed")
	before := counterValue(t, failed)

	ObserveReport(errors.New("telegram api returned non-200 status: 502"))
	ObserveReport(nil)

	assert.Equal(t, before+1, counterValue(t, failed))
}

func TestMetricsAreRegistered(t *testing.T) {
	ObserveRun("success", 12)
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["hybrid_backup_run_total"])
	assert.True(t, names["hybrid_backup_run_duration_seconds"])
}
