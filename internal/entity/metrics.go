package entity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is shared by every session's store. Register it once per process.
type Metrics struct {
	Fetches   *prometheus.CounterVec
	InFlight  prometheus.Gauge
	Duration  prometheus.Histogram
	BatchSize prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stacnav_fetch_total",
			Help: "Catalog resource fetches by result.",
		}, []string{"result"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "stacnav_fetch_in_flight",
			Help: "Catalog resource fetches currently outstanding.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stacnav_fetch_duration_seconds",
			Help:    "Time to fetch and parse one catalog resource.",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stacnav_prefetch_batch_size",
			Help:    "URIs dispatched per ancestor prefetch.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}
}

func (m *Metrics) fetchStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) fetchDone(result string, seconds float64) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Fetches.WithLabelValues(result).Inc()
	m.Duration.Observe(seconds)
}

// ObserveBatch records the size of one prefetch batch.
func (m *Metrics) ObserveBatch(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}
