// Package metrics exposes reactor and classifier counters as a custom
// Prometheus collector, in the style of runZeroInc-sockstats'
// TCPInfoCollector: rather than updating promauto gauges from inside the
// hot path, Collect() pulls live values from the sources of truth (the ring
// quartet's counters, the classifier's per-CPU stats map) only when
// scraped.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbpf/rainbow/internal/classifier"
)

// RingSource is satisfied by *xdpring.Ring[T] for any T; kept as an
// interface here so the collector doesn't need a type parameter per ring.
type RingSource interface {
	Pending() uint32
	Capacity() uint32
}

// ReactorSource exposes the four rings of one reactor instance, labeled by
// destination index.
type ReactorSource struct {
	Destination uint32
	Fill, Comp  RingSource
	RX, TX      RingSource
}

// Collector aggregates ring occupancy across every registered reactor plus
// the shared classifier's redirect/pass/drop counters.
type Collector struct {
	reactors []ReactorSource
	cls      *classifier.Classifier

	ringPending *prometheus.Desc
	ringCap     *prometheus.Desc
	classStat   *prometheus.Desc
}

// New builds a Collector for cls (which may be nil). Reactors are added
// after construction via AddReactor, since they come online one at a time
// as their Setup completes.
func New(cls *classifier.Classifier) *Collector {
	return &Collector{
		cls: cls,
		ringPending: prometheus.NewDesc(
			"rainbow_ring_pending_descriptors",
			"Descriptors currently queued in a ring awaiting consumption.",
			[]string{"destination", "ring"}, nil),
		ringCap: prometheus.NewDesc(
			"rainbow_ring_capacity_descriptors",
			"Fixed descriptor capacity of a ring.",
			[]string{"destination", "ring"}, nil),
		classStat: prometheus.NewDesc(
			"rainbow_classifier_packets_total",
			"Packets observed by the in-kernel classifier, by outcome.",
			[]string{"outcome"}, nil),
	}
}

// AddReactor registers a reactor's rings for collection. Not safe to call
// concurrently with Collect — call it only during startup before the
// collector is registered with a registry.
func (c *Collector) AddReactor(src ReactorSource) {
	c.reactors = append(c.reactors, src)
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.ringPending
	descs <- c.ringCap
	descs <- c.classStat
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, r := range c.reactors {
		dest := strconv.FormatUint(uint64(r.Destination), 10)
		c.emitRing(metrics, dest, "fill", r.Fill)
		c.emitRing(metrics, dest, "completion", r.Comp)
		c.emitRing(metrics, dest, "rx", r.RX)
		c.emitRing(metrics, dest, "tx", r.TX)
	}

	if c.cls == nil {
		return
	}
	stats, err := c.cls.ReadStats()
	if err != nil {
		return
	}
	labels := []string{"total", "passed", "dropped", "redirected"}
	for i, label := range labels {
		metrics <- prometheus.MustNewConstMetric(c.classStat, prometheus.CounterValue, float64(stats[i]), label)
	}
}

func (c *Collector) emitRing(metrics chan<- prometheus.Metric, dest, ring string, r RingSource) {
	if r == nil {
		return
	}
	metrics <- prometheus.MustNewConstMetric(c.ringPending, prometheus.GaugeValue, float64(r.Pending()), dest, ring)
	metrics <- prometheus.MustNewConstMetric(c.ringCap, prometheus.GaugeValue, float64(r.Capacity()), dest, ring)
}
