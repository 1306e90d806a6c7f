package capture

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var persistBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Persist outcomes reported on the persist counter.
const (
	outcomeStored  = "stored"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
	outcomePanic   = "panic"
)

// Metrics counts captures and persistence outcomes. A nil *Metrics records nothing.
type Metrics struct {
	captured        *prometheus.CounterVec
	persisted       *prometheus.CounterVec
	persistDuration prometheus.Histogram
}

// NewMetrics registers the capture collectors with reg, reusing collectors that
// are already registered. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terror",
			Subsystem: "capture",
			Name:      "errors_total",
			Help:      "Count of captured request failures",
		}, []string{"category", "status"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terror",
			Subsystem: "capture",
			Name:      "persist_total",
			Help:      "Outcomes of error record persistence",
		}, []string{"outcome"}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "terror",
			Subsystem: "capture",
			Name:      "persist_duration_seconds",
			Help:      "Latency of error record writes",
			Buckets:   persistBuckets,
		}),
	}

	collectors := []prometheus.Collector{m.captured, m.persisted, m.persistDuration}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					if collector == m.captured {
						m.captured = existing
					} else {
						m.persisted = existing
					}
				case prometheus.Histogram:
					m.persistDuration = existing
				}
			}
		}
	}
	return m
}

func (m *Metrics) recordCapture(category string, status int) {
	if m == nil {
		return
	}
	m.captured.With(prometheus.Labels{"category": category, "status": strconv.Itoa(status)}).Inc()
}

func (m *Metrics) recordPersist(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.persisted.With(prometheus.Labels{"outcome": outcome}).Inc()
	if outcome == outcomeStored || outcome == outcomeFailed {
		m.persistDuration.Observe(duration.Seconds())
	}
}
