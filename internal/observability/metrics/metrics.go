package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters/histograms for sync runs.
type SyncMetrics struct {
	runsTotal   *prometheus.CounterVec
	itemsTotal  *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// Run statuses.
const (
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
	StatusNotImplemented = "not_implemented"
)

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sameday",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total sync runs by platform, sync type and outcome",
		}, []string{"platform", "sync_type", "status"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sameday",
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Rows written by sync runs, by kind",
		}, []string{"platform", "kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sameday",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a sync run",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.itemsTotal, m.runDuration)
	return m
}

func (m *SyncMetrics) ObserveRun(platform, syncType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(platform, syncType, status).Inc()
	m.runDuration.WithLabelValues(platform).Observe(seconds)
}

// AddItems counts n rows of kind (appointments, services_created, slots_created...).
func (m *SyncMetrics) AddItems(platform, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsTotal.WithLabelValues(platform, kind).Add(float64(n))
}
