package syncmgr

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by all managers of the node. Gauges are updated by deltas
// because every manager owns its own queue
type Metrics struct {
	processed   prometheus.Counter
	skipped     prometheus.Counter
	errors      prometheus.Counter
	evicted     prometheus.Counter
	queueMemory prometheus.Gauge
	pending     prometheus.Gauge
	checkpoint  prometheus.Gauge
}

// NewMetrics creates metrics and registers them in the registry, if it is not nil
func NewMetrics(reg *prometheus.Registry) *Metrics {
	ret := &Metrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_sync_processed_total",
			Help: "number of blocks stored by sync",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_sync_skipped_total",
			Help: "number of known or invalid blocks skipped by sync",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_sync_errors_total",
			Help: "number of blocks failed by storage or oracle",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_sync_evicted_total",
			Help: "number of deferred blocks evicted from the queue to meet the memory budget",
		}),
		queueMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagcore_sync_queue_memory_bytes",
			Help: "estimated size of queued blocks",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagcore_sync_pending_blocks",
			Help: "number of blocks waiting for parents",
		}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagcore_sync_checkpoint_height",
			Help: "latest sync checkpoint height",
		}),
	}
	if reg != nil {
		reg.MustRegister(ret.processed, ret.skipped, ret.errors, ret.evicted, ret.queueMemory, ret.pending, ret.checkpoint)
	}
	return ret
}

func (m *Metrics) countResult(r Result) {
	m.processed.Add(float64(r.Processed))
	m.skipped.Add(float64(r.Skipped))
	m.errors.Add(float64(r.Errors))
}
