// Package monitor exposes the viewer's composite and buffer telemetry over
// HTTP: JSON stats for the UI, an echarts utilisation chart for eyeballing
// buffer behaviour, and prometheus metrics for scraping.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarview/internal/view"
)

// defaultRingSize holds ~5 minutes of samples at the default 1s interval.
const defaultRingSize = 300

// Sample is one telemetry observation of the compositor.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	Background int       `json:"background"`
	Foreground int       `json:"foreground"`
	Total      int       `json:"total"`
	BgCapacity int       `json:"bg_capacity"`
	BgUsed     int       `json:"bg_used"`
	FgCapacity int       `json:"fg_capacity"`
	FgUsed     int       `json:"fg_used"`
	CacheState string    `json:"cache_state"`
}

// Aggregates summarise the foreground point counts over the sample window.
type Aggregates struct {
	Samples        int     `json:"samples"`
	ForegroundMean float64 `json:"foreground_mean"`
	ForegroundP50  float64 `json:"foreground_p50"`
	ForegroundP95  float64 `json:"foreground_p95"`
}

// Telemetry is a fixed-size ring of compositor samples.
type Telemetry struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
}

// NewTelemetry creates a telemetry ring. size <= 0 selects the default.
func NewTelemetry(size int) *Telemetry {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Telemetry{samples: make([]Sample, size)}
}

// Sample reads the compositor's current state into the ring.
func (t *Telemetry) Sample(comp *view.Compositor) {
	stats := comp.Stats()
	buf := comp.BufferStats()
	s := Sample{
		Timestamp:  time.Now(),
		Background: stats.Background,
		Foreground: stats.Foreground,
		Total:      stats.Total,
		BgCapacity: buf.BgCapacity,
		BgUsed:     buf.BgUsed,
		FgCapacity: buf.FgCapacity,
		FgUsed:     buf.FgUsed,
		CacheState: comp.CacheState().String(),
	}

	t.mu.Lock()
	t.samples[t.next] = s
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.full = true
	}
	t.mu.Unlock()
}

// Run samples the compositor on the given interval until ctx is done.
func (t *Telemetry) Run(ctx context.Context, comp *view.Compositor, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sample(comp)
		}
	}
}

// Snapshot returns the samples in chronological order.
func (t *Telemetry) Snapshot() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Sample
	if t.full {
		out = make([]Sample, 0, len(t.samples))
		out = append(out, t.samples[t.next:]...)
		out = append(out, t.samples[:t.next]...)
	} else {
		out = append(out, t.samples[:t.next]...)
	}
	return out
}

// Aggregates computes summary statistics over the current window.
func (t *Telemetry) Aggregates() Aggregates {
	samples := t.Snapshot()
	if len(samples) == 0 {
		return Aggregates{}
	}

	fg := make([]float64, len(samples))
	for i, s := range samples {
		fg[i] = float64(s.Foreground)
	}
	sort.Float64s(fg)

	return Aggregates{
		Samples:        len(samples),
		ForegroundMean: stat.Mean(fg, nil),
		ForegroundP50:  stat.Quantile(0.5, stat.Empirical, fg, nil),
		ForegroundP95:  stat.Quantile(0.95, stat.Empirical, fg, nil),
	}
}
