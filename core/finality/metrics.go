package finality

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	finalizedHeight prometheus.Gauge
	finalizedTotal  prometheus.Gauge
	droppedEvents   prometheus.Counter
}

func (t *Tracker) registerMetrics(reg *prometheus.Registry) {
	t.metrics = metrics{
		finalizedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagcore_finalized_height",
			Help: "finalized height",
		}),
		finalizedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagcore_finalized_total",
			Help: "number of blocks finalized since start or reset",
		}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_finality_events_dropped_total",
			Help: "finality events not delivered to lagging subscribers",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.metrics.finalizedHeight, t.metrics.finalizedTotal, t.metrics.droppedEvents)
	}
}

func (t *Tracker) updateMetrics() {
	t.metrics.finalizedHeight.Set(float64(t.finalizedHeight.Load()))
	t.metrics.finalizedTotal.Set(float64(t.finalizedCount.Load()))
}
