// Package linkhealth samples link and host conditions and advises
// pipeline reconfiguration, per SPEC_FULL.md §4.8/§4.10. Grounded on
// original_source/crates/aria-telemetry/src/link_health.rs
// (LinkHealthController).
package linkhealth

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemMetrics is one observation of link and host conditions.
type SystemMetrics struct {
	PacketLossRate float64 // 0..1
	LatencyMS      float64
	CPUPercent     float64
	MemoryMB       float64
	BandwidthMbps  float64
}

// FECParams is a requested (k, m) shard configuration.
type FECParams struct {
	K int
	M int
}

// Advice is emitted by Controller.Advise: zero or more reconfiguration
// hints for the pipeline to apply. A nil field means "no change
// recommended."
type Advice struct {
	AdjustRate *float64
	AdjustFEC  *FECParams
	AdjustCodec *string
}

// Controller holds the most recently observed SystemMetrics and
// derives Advice from it against fixed reference thresholds.
type Controller struct {
	mu            sync.RWMutex
	metrics       SystemMetrics
	targetLatency float64 // milliseconds; latency above 1.5x this triggers backoff advice
}

// NewController returns a Controller with all-zero metrics and the
// given target latency (used for the 1.5x threshold).
func NewController(targetLatencyMS float64) *Controller {
	return &Controller{targetLatency: targetLatencyMS}
}

// UpdateMetrics replaces the controller's current reading.
func (c *Controller) UpdateMetrics(m SystemMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Advise applies the reference thresholds: loss rate above 10% asks
// for FEC(4,2); bandwidth under 1 Mbps asks for the fast compressor;
// latency above 1.5x target asks for a 0.8x rate scalar and also
// prefers the fast compressor (latency pressure and low bandwidth
// both resolve to the same codec preference, so a later latency check
// does not clobber an already-set fast-codec preference from the
// bandwidth check).
func (c *Controller) Advise() Advice {
	c.mu.RLock()
	m := c.metrics
	c.mu.RUnlock()

	var advice Advice

	if m.PacketLossRate > 0.1 {
		advice.AdjustFEC = &FECParams{K: 4, M: 2}
	}

	fast := "fast"
	if m.BandwidthMbps < 1.0 {
		advice.AdjustCodec = &fast
	}

	if c.targetLatency > 0 && m.LatencyMS > 1.5*c.targetLatency {
		rate := 0.8
		advice.AdjustRate = &rate
		advice.AdjustCodec = &fast
	}

	return advice
}

// Sampler produces SystemMetrics readings from host CPU/memory
// sensors via gopsutil. PacketLossRate, LatencyMS and BandwidthMbps
// are link-layer observations the transport supplies directly; they
// are not something a host-level sampler can measure, so Sample takes
// them as parameters rather than guessing at them.
type Sampler struct{}

// NewSampler returns a Sampler.
func NewSampler() *Sampler { return &Sampler{} }

// Sample reads current CPU and memory usage and combines them with
// the caller-supplied link observations into one SystemMetrics value.
func (s *Sampler) Sample(ctx context.Context, packetLossRate, latencyMS, bandwidthMbps float64) (SystemMetrics, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return SystemMetrics{}, err
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemMetrics{}, err
	}
	memoryMB := float64(vm.Used) / (1024 * 1024)

	return SystemMetrics{
		PacketLossRate: packetLossRate,
		LatencyMS:      latencyMS,
		CPUPercent:     cpuPercent,
		MemoryMB:       memoryMB,
		BandwidthMbps:  bandwidthMbps,
	}, nil
}
