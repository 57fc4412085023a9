package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the sync layer.
type Metrics struct {
	refreshes *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rows      *prometheus.GaugeVec
}

// NewMetrics registers the sync instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loci_sync_refreshes_total",
			Help: "Refresh operations by scope and outcome.",
		}, []string{"scope", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loci_sync_refresh_duration_seconds",
			Help:    "Wall-clock duration of refresh operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scope"}),
		rows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loci_sync_cached_rows",
			Help: "Rows written into the local cache by the last refresh, per scope.",
		}, []string{"scope"}),
	}
}

func (m *Metrics) observeRefresh(scope string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(scope, outcome).Inc()
	m.duration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRows(scope string, count int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(scope).Set(float64(count))
}
