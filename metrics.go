package flexconfig

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records source load activity. One Metrics value is shared by all
// sources registered against the same registry; sources are told apart by
// the "source" label.
type Metrics struct {
	loadsTotal    *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	entries       *prometheus.GaugeVec
	skippedReload *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flexconfig",
				Name:      "loads_total",
				Help:      "Total number of source loads by result",
			},
			[]string{"source", "result"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flexconfig",
				Name:      "load_duration_seconds",
				Help:      "Source load duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flexconfig",
				Name:      "entries",
				Help:      "Number of flat keys in the current snapshot",
			},
			[]string{"source"},
		),
		skippedReload: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flexconfig",
				Name:      "reloads_skipped_total",
				Help:      "Reload ticks dropped because a load was still running",
			},
			[]string{"source"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.loadsTotal, m.loadDuration, m.entries, m.skippedReload} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeLoad(source, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(source, result).Inc()
	m.loadDuration.WithLabelValues(source).Observe(took.Seconds())
}

func (m *Metrics) setEntries(source string, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(source).Set(float64(n))
}

func (m *Metrics) skipReload(source string) {
	if m == nil {
		return
	}
	m.skippedReload.WithLabelValues(source).Inc()
}
