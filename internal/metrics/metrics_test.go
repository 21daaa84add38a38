package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*Recorder, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			total += metricValue(m)
		}
	}
	return total
}

func metricValue(m *dto.Metric) float64 {
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	if m.Gauge != nil {
		return m.Gauge.GetValue()
	}
	return 0
}

func TestObserveTurnIncrementsCounterAndHistogram(t *testing.T) {
	r, reg := newTestRecorder(t)

	r.ObserveTurn(true, "sent", 50*time.Millisecond)
	r.ObserveTurn(false, "ignored", 0)

	require.Equal(t, float64(2), counterValue(t, reg, "gryag_turns_total"))
}

func TestQuotaAndBanCounters(t *testing.T) {
	r, reg := newTestRecorder(t)

	r.IncQuotaDenial("global")
	r.IncQuotaDenial("feature")
	r.IncBanDrop()

	require.Equal(t, float64(2), counterValue(t, reg, "gryag_quota_denials_total"))
	require.Equal(t, float64(1), counterValue(t, reg, "gryag_ban_drops_total"))
}

func TestCircuitStateGauge(t *testing.T) {
	r, reg := newTestRecorder(t)

	r.SetCircuitState("llm", 2)
	r.IncCircuitTrip()

	require.Equal(t, float64(2), counterValue(t, reg, "gryag_circuit_state"))
	require.Equal(t, float64(1), counterValue(t, reg, "gryag_circuit_trips_total"))
}

func TestFactsExtractedSkipsZero(t *testing.T) {
	r, reg := newTestRecorder(t)

	r.IncFactsExtracted("rule", 0)
	r.IncFactsExtracted("rule", 3)

	require.Equal(t, float64(3), counterValue(t, reg, "gryag_facts_extracted_total"))
}
