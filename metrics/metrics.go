// Package metrics exports pipeline counters and link health gauges
// via Prometheus collectors. The package-level stats struct (one
// field per metric, a Copy/Reset pair) keeps the shape of teacher's
// snmp.go; NewRegistry's CounterFunc collectors read that struct's
// values (via Copy) instead of teacher's plain-text Header/ToSlice
// report.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds atomically-updated pipeline counters, mirroring
// teacher's Snmp struct shape (one uint64 field per counter).
type Stats struct {
	EnvelopesSent     uint64
	EnvelopesReceived uint64
	BytesSent         uint64
	BytesReceived     uint64

	FragmentsEmitted uint64
	FragmentsJoined  uint64

	FECShardSets  uint64
	FECRecovered  uint64
	FECUnrecoverable uint64

	CryptoVerifyFailures uint64
	SchemaUnknownErrors  uint64

	SequencesLost uint64
}

// Copy returns a snapshot of s, read with atomic loads.
func (s *Stats) Copy() *Stats {
	return &Stats{
		EnvelopesSent:        atomic.LoadUint64(&s.EnvelopesSent),
		EnvelopesReceived:    atomic.LoadUint64(&s.EnvelopesReceived),
		BytesSent:            atomic.LoadUint64(&s.BytesSent),
		BytesReceived:        atomic.LoadUint64(&s.BytesReceived),
		FragmentsEmitted:     atomic.LoadUint64(&s.FragmentsEmitted),
		FragmentsJoined:      atomic.LoadUint64(&s.FragmentsJoined),
		FECShardSets:         atomic.LoadUint64(&s.FECShardSets),
		FECRecovered:         atomic.LoadUint64(&s.FECRecovered),
		FECUnrecoverable:     atomic.LoadUint64(&s.FECUnrecoverable),
		CryptoVerifyFailures: atomic.LoadUint64(&s.CryptoVerifyFailures),
		SchemaUnknownErrors:  atomic.LoadUint64(&s.SchemaUnknownErrors),
		SequencesLost:        atomic.LoadUint64(&s.SequencesLost),
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.EnvelopesSent, 0)
	atomic.StoreUint64(&s.EnvelopesReceived, 0)
	atomic.StoreUint64(&s.BytesSent, 0)
	atomic.StoreUint64(&s.BytesReceived, 0)
	atomic.StoreUint64(&s.FragmentsEmitted, 0)
	atomic.StoreUint64(&s.FragmentsJoined, 0)
	atomic.StoreUint64(&s.FECShardSets, 0)
	atomic.StoreUint64(&s.FECRecovered, 0)
	atomic.StoreUint64(&s.FECUnrecoverable, 0)
	atomic.StoreUint64(&s.CryptoVerifyFailures, 0)
	atomic.StoreUint64(&s.SchemaUnknownErrors, 0)
	atomic.StoreUint64(&s.SequencesLost, 0)
}

// Registry wraps a Stats struct plus the link-health gauges, both
// registered against a prometheus.Registerer.
type Registry struct {
	stats *Stats

	envelopesSent     prometheus.CounterFunc
	envelopesReceived prometheus.CounterFunc
	fecRecovered      prometheus.CounterFunc
	sequencesLost     prometheus.CounterFunc

	packetLossRate prometheus.Gauge
	latencyMS      prometheus.Gauge
	cpuPercent     prometheus.Gauge
	memoryMB       prometheus.Gauge
	bandwidthMbps  prometheus.Gauge
}

// NewRegistry builds a Registry backed by stats and registers every
// collector against reg.
func NewRegistry(reg prometheus.Registerer, stats *Stats) *Registry {
	r := &Registry{stats: stats}

	r.envelopesSent = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "aria",
		Subsystem: "telemetry",
		Name:      "envelopes_sent_total",
		Help:      "Envelopes admitted to the transport send path.",
	}, func() float64 { return float64(stats.Copy().EnvelopesSent) })

	r.envelopesReceived = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "aria",
		Subsystem: "telemetry",
		Name:      "envelopes_received_total",
		Help:      "Envelopes accepted off the transport receive path.",
	}, func() float64 { return float64(stats.Copy().EnvelopesReceived) })

	r.fecRecovered = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "aria",
		Subsystem: "telemetry",
		Name:      "fec_recovered_total",
		Help:      "Blocks reconstructed by the FEC stage from partial shards.",
	}, func() float64 { return float64(stats.Copy().FECRecovered) })

	r.sequencesLost = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "aria",
		Subsystem: "telemetry",
		Name:      "sequences_lost_total",
		Help:      "Sequence numbers recovery.Manager never observed arriving.",
	}, func() float64 { return float64(stats.Copy().SequencesLost) })

	r.packetLossRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aria",
		Subsystem: "link",
		Name:      "packet_loss_rate",
		Help:      "Most recently sampled packet loss rate, 0..1.",
	})
	r.latencyMS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aria",
		Subsystem: "link",
		Name:      "latency_ms",
		Help:      "Most recently sampled round-trip latency in milliseconds.",
	})
	r.cpuPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aria",
		Subsystem: "link",
		Name:      "cpu_percent",
		Help:      "Most recently sampled host CPU utilization, 0..100.",
	})
	r.memoryMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aria",
		Subsystem: "link",
		Name:      "memory_mb",
		Help:      "Most recently sampled host resident memory in megabytes.",
	})
	r.bandwidthMbps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aria",
		Subsystem: "link",
		Name:      "bandwidth_mbps",
		Help:      "Most recently sampled available bandwidth in Mbps.",
	})

	reg.MustRegister(
		r.envelopesSent, r.envelopesReceived, r.fecRecovered, r.sequencesLost,
		r.packetLossRate, r.latencyMS, r.cpuPercent, r.memoryMB, r.bandwidthMbps,
	)
	return r
}

// Stats returns the underlying counters struct, for stages to
// increment directly with atomic.AddUint64.
func (r *Registry) Stats() *Stats { return r.stats }

// SetLinkMetrics updates the link-health gauges from a freshly
// sampled reading.
func (r *Registry) SetLinkMetrics(lossRate, latencyMS, cpuPercent, memoryMB, bandwidthMbps float64) {
	r.packetLossRate.Set(lossRate)
	r.latencyMS.Set(latencyMS)
	r.cpuPercent.Set(cpuPercent)
	r.memoryMB.Set(memoryMB)
	r.bandwidthMbps.Set(bandwidthMbps)
}
