package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intellitrack"

// Collector holds the substrate counters. A nil *Collector is valid and
// records nothing, so the Space can call it unconditionally.
type Collector struct {
	entities  prometheus.Gauge
	created   prometheus.Counter
	destroyed prometheus.Counter
	renamed   prometheus.Counter
	reparents prometheus.Counter
	rejected  *prometheus.CounterVec
	deferred  *prometheus.CounterVec
	flushed   *prometheus.CounterVec
}

// NewCollector creates the metric set and registers it with reg.
// A nil reg leaves the metrics unregistered, which keeps tests isolated.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "space",
			Name:      "entities",
			Help:      "Number of live entities registered in the space.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "space",
			Name:      "created_total",
			Help:      "Entities created.",
		}),
		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "space",
			Name:      "destroyed_total",
			Help:      "Entities destroyed, including cascaded descendants.",
		}),
		renamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "space",
			Name:      "renames_total",
			Help:      "Successful renames.",
		}),
		reparents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "space",
			Name:      "reparents_total",
			Help:      "Successful reparent operations.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "space",
			Name:      "rejected_total",
			Help:      "Rename/reparent/create attempts rejected, by reason.",
		}, []string{"reason"}),
		deferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "deferred_total",
			Help:      "Group mutations queued while iterators were active.",
		}, []string{"group"}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "flushed_total",
			Help:      "Deferred group mutations applied after iteration ended.",
		}, []string{"group"}),
	}
	if reg != nil {
		reg.MustRegister(c.entities, c.created, c.destroyed, c.renamed,
			c.reparents, c.rejected, c.deferred, c.flushed)
	}
	return c
}

func (c *Collector) Created() {
	if c == nil {
		return
	}
	c.created.Inc()
	c.entities.Inc()
}

func (c *Collector) Destroyed(n int) {
	if c == nil || n == 0 {
		return
	}
	c.destroyed.Add(float64(n))
	c.entities.Sub(float64(n))
}

func (c *Collector) Renamed() {
	if c == nil {
		return
	}
	c.renamed.Inc()
}

func (c *Collector) Reparented() {
	if c == nil {
		return
	}
	c.reparents.Inc()
}

// Rejected counts a refused operation; reason is a short stable label such
// as "conflict" or "cycle".
func (c *Collector) Rejected(reason string) {
	if c == nil {
		return
	}
	c.rejected.WithLabelValues(reason).Inc()
}

func (c *Collector) Deferred(group string) {
	if c == nil {
		return
	}
	c.deferred.WithLabelValues(group).Inc()
}

func (c *Collector) Flushed(group string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.flushed.WithLabelValues(group).Add(float64(n))
}
