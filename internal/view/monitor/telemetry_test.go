package monitor

import (
	"testing"

	"github.com/banshee-data/lidarview/internal/view"
)

func sampledCompositor(t *testing.T, fgPoints int) *view.Compositor {
	t.Helper()
	comp := view.NewCompositor()

	snapshot := &view.BackgroundSnapshot{
		SequenceNumber: 1,
		X:              make([]float32, 100),
		Y:              make([]float32, 100),
		Z:              make([]float32, 100),
		Confidence:     make([]uint32, 100),
	}
	comp.ProcessFrame(view.NewBackgroundFrame(1, "s", snapshot))

	pc := view.NewPointCloudFrame(2, "s", fgPoints)
	comp.ProcessFrame(view.NewForegroundFrame(2, "s", pc, 1))
	return comp
}

func TestTelemetry_SampleAndSnapshot(t *testing.T) {
	tel := NewTelemetry(10)
	comp := sampledCompositor(t, 50)

	tel.Sample(comp)
	tel.Sample(comp)

	samples := tel.Snapshot()
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	s := samples[0]
	if s.Background != 100 || s.Foreground != 50 || s.Total != 150 {
		t.Errorf("unexpected sample: %+v", s)
	}
	if s.CacheState != "Cached" {
		t.Errorf("expected cache state Cached, got %q", s.CacheState)
	}
	if s.BgUsed != 100 || s.FgUsed != 50 {
		t.Errorf("unexpected buffer usage: bg=%d fg=%d", s.BgUsed, s.FgUsed)
	}
}

func TestTelemetry_RingWrapsChronologically(t *testing.T) {
	tel := NewTelemetry(4)
	comp := view.NewCompositor()

	// Overfill the ring; the snapshot must hold the latest 4 samples in
	// chronological order.
	for i := 0; i < 6; i++ {
		pc := view.NewPointCloudFrame(uint64(i+1), "s", i+1)
		comp.ProcessFrame(view.NewForegroundFrame(uint64(i+1), "s", pc, 0))
		tel.Sample(comp)
	}

	samples := tel.Snapshot()
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples after wrap, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Foreground <= samples[i-1].Foreground {
			t.Errorf("samples out of order: %d then %d", samples[i-1].Foreground, samples[i].Foreground)
		}
	}
	if samples[3].Foreground != 6 {
		t.Errorf("expected latest sample foreground=6, got %d", samples[3].Foreground)
	}
}

func TestTelemetry_Aggregates(t *testing.T) {
	tel := NewTelemetry(10)
	comp := view.NewCompositor()

	counts := []int{10, 20, 30, 40}
	for i, n := range counts {
		pc := view.NewPointCloudFrame(uint64(i+1), "s", n)
		comp.ProcessFrame(view.NewForegroundFrame(uint64(i+1), "s", pc, 0))
		tel.Sample(comp)
	}

	agg := tel.Aggregates()
	if agg.Samples != 4 {
		t.Errorf("expected 4 samples, got %d", agg.Samples)
	}
	if agg.ForegroundMean != 25 {
		t.Errorf("expected mean 25, got %f", agg.ForegroundMean)
	}
	if agg.ForegroundP95 < agg.ForegroundP50 {
		t.Errorf("expected p95 >= p50, got p50=%f p95=%f", agg.ForegroundP50, agg.ForegroundP95)
	}
}

func TestTelemetry_AggregatesEmpty(t *testing.T) {
	tel := NewTelemetry(10)
	agg := tel.Aggregates()
	if agg.Samples != 0 || agg.ForegroundMean != 0 {
		t.Errorf("expected zero aggregates, got %+v", agg)
	}
}
