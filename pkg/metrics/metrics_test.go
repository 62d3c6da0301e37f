package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleCount returns the histogram sample count of the stage_duration
// series with the given labels.
func sampleCount(t *testing.T, stage, status string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != "planport_stage_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["stage"] == stage && labels["status"] == status {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func TestObserveStage(t *testing.T) {
	before := sampleCount(t, "metrics_test", "success")
	beforeErr := sampleCount(t, "metrics_test", "error")

	ObserveStage("metrics_test", 20*time.Millisecond, nil)
	ObserveStage("metrics_test", time.Second, errors.New("boom"))
	ObserveStage("metrics_test", time.Second, errors.New("boom"))

	assert.Equal(t, before+1, sampleCount(t, "metrics_test", "success"))
	assert.Equal(t, beforeErr+2, sampleCount(t, "metrics_test", "error"))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("upload")
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, "upload", timer.Name())
	first := timer.Stop()
	assert.GreaterOrEqual(t, first, 5*time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), first)
}
