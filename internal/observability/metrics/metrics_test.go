package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestSyncMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.ObserveRun("square", "full", StatusSucceeded, 1.5)
	m.ObserveRun("square", "full", StatusSucceeded, 0.5)
	m.ObserveRun("square", "incremental", StatusFailed, 0.1)
	m.AddItems("square", "slots_created", 3)
	m.AddItems("square", "slots_created", 0)

	if got := counterValue(t, reg, "sameday_sync_runs_total", map[string]string{"sync_type": "full", "status": StatusSucceeded}); got != 2 {
		t.Fatalf("runs_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "sameday_sync_items_total", map[string]string{"kind": "slots_created"}); got != 3 {
		t.Fatalf("items_total = %v, want 3", got)
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.ObserveRun("square", "full", StatusSucceeded, 0.1)
	m.AddItems("square", "appointments", 4)
}
