package linkhealth

import (
	"context"
	"testing"
)

func TestAdviseRecommendsFECOnHighLoss(t *testing.T) {
	c := NewController(50)
	c.UpdateMetrics(SystemMetrics{PacketLossRate: 0.15, LatencyMS: 50, BandwidthMbps: 5})

	advice := c.Advise()
	if advice.AdjustFEC == nil {
		t.Fatal("expected FEC advice for packet loss above 10%")
	}
	if advice.AdjustFEC.K != 4 || advice.AdjustFEC.M != 2 {
		t.Fatalf("AdjustFEC = %+v, want (4, 2)", advice.AdjustFEC)
	}
}

func TestAdviseRecommendsFastCodecOnLowBandwidth(t *testing.T) {
	c := NewController(50)
	c.UpdateMetrics(SystemMetrics{BandwidthMbps: 0.5})

	advice := c.Advise()
	if advice.AdjustCodec == nil || *advice.AdjustCodec != "fast" {
		t.Fatalf("AdjustCodec = %v, want \"fast\"", advice.AdjustCodec)
	}
}

func TestAdviseBacksOffRateOnHighLatency(t *testing.T) {
	c := NewController(50) // target 50ms, threshold is 1.5x = 75ms
	c.UpdateMetrics(SystemMetrics{LatencyMS: 100, BandwidthMbps: 10})

	advice := c.Advise()
	if advice.AdjustRate == nil {
		t.Fatal("expected rate advice when latency exceeds 1.5x target")
	}
	if *advice.AdjustRate != 0.8 {
		t.Fatalf("AdjustRate = %v, want 0.8", *advice.AdjustRate)
	}
	if advice.AdjustCodec == nil || *advice.AdjustCodec != "fast" {
		t.Fatal("high latency should also prefer the fast codec")
	}
}

func TestAdviseIsEmptyUnderHealthyConditions(t *testing.T) {
	c := NewController(50)
	c.UpdateMetrics(SystemMetrics{PacketLossRate: 0.01, LatencyMS: 20, BandwidthMbps: 100})

	advice := c.Advise()
	if advice.AdjustFEC != nil || advice.AdjustCodec != nil || advice.AdjustRate != nil {
		t.Fatalf("expected no advice under healthy conditions, got %+v", advice)
	}
}

func TestSamplerReadsHostMetrics(t *testing.T) {
	s := NewSampler()
	m, err := s.Sample(context.Background(), 0.02, 15.0, 50.0)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if m.PacketLossRate != 0.02 || m.LatencyMS != 15.0 || m.BandwidthMbps != 50.0 {
		t.Fatalf("Sample did not preserve caller-supplied link fields: %+v", m)
	}
	if m.MemoryMB <= 0 {
		t.Fatalf("MemoryMB = %v, want > 0 on a real host", m.MemoryMB)
	}
}
