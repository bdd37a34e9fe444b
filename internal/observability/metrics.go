package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the Prometheus collectors for the measurement pipeline.
type Metrics struct {
	Extractions        *prometheus.CounterVec // labels: outcome={success,subject_not_recognized,malformed_response,transport_failure,cancelled}
	OracleDuration     prometheus.Histogram
	InconsistentReads  prometheus.Counter
	CalibrationCommits *prometheus.CounterVec // labels: outcome={success,blocked,error}
	ExemplarsStored    prometheus.Gauge
	ActiveSessions     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()
	prometheus.MustRegister(
		m.Extractions,
		m.OracleDuration,
		m.InconsistentReads,
		m.CalibrationCommits,
		m.ExemplarsStored,
		m.ActiveSessions,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psychro",
			Name:      "extractions_total",
			Help:      "Reading extractions by outcome.",
		}, []string{"outcome"}),
		OracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "psychro",
			Name:      "oracle_request_duration_seconds",
			Help:      "Duration of reading-extraction oracle calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		InconsistentReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "psychro",
			Name:      "inconsistent_readings_total",
			Help:      "Extracted readings whose wet bulb was above the dry bulb.",
		}),
		CalibrationCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psychro",
			Name:      "calibration_commits_total",
			Help:      "Calibration commit attempts by outcome.",
		}, []string{"outcome"}),
		ExemplarsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "psychro",
			Name:      "calibration_exemplars",
			Help:      "Number of calibration exemplars currently stored.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "psychro",
			Name:      "active_sessions",
			Help:      "Number of open measurement sessions.",
		}),
	}
}

// Value reads the current value of a counter or gauge.
func Value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return 0
	}
	if c := out.GetCounter(); c != nil {
		return c.GetValue()
	}
	return out.GetGauge().GetValue()
}
