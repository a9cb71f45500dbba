package ordering

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge
}

func (o *TotalOrdering) registerMetrics(reg *prometheus.Registry) {
	o.metrics = metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_ordering_cache_hits_total",
			Help: "number of total order requests served from the cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagcore_ordering_cache_misses_total",
			Help: "number of total order requests which required DAG traversal",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dagcore_ordering_cache_entries",
			Help: "number of total orders in the cache",
		}),
	}
	if reg != nil {
		reg.MustRegister(o.metrics.cacheHits, o.metrics.cacheMisses, o.metrics.cacheEntries)
	}
}

func (o *TotalOrdering) updateCacheGauge() {
	o.metrics.cacheEntries.Set(float64(o.cache.Len()))
}
