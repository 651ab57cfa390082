package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/lidarview/internal/view"
)

// compositorCollector exports compositor counters and buffer gauges as
// prometheus metrics. Const metrics are built per scrape so the collector
// holds no state of its own.
type compositorCollector struct {
	comp *view.Compositor

	framesProcessed *prometheus.Desc
	bgIngests       *prometheus.Desc
	invalidations   *prometheus.Desc
	malformed       *prometheus.Desc
	compositePoints *prometheus.Desc
	bufferCapacity  *prometheus.Desc
	bufferUsed      *prometheus.Desc
	cacheState      *prometheus.Desc
}

// NewCompositorCollector creates a prometheus collector for a compositor.
func NewCompositorCollector(comp *view.Compositor) prometheus.Collector {
	return &compositorCollector{
		comp: comp,
		framesProcessed: prometheus.NewDesc(
			"lidarview_frames_processed_total",
			"Frame bundles handed to the compositor.", nil, nil),
		bgIngests: prometheus.NewDesc(
			"lidarview_background_ingests_total",
			"Background snapshots ingested into the cache.", nil, nil),
		invalidations: prometheus.NewDesc(
			"lidarview_cache_invalidations_total",
			"Background cache invalidations from sequence mismatches.", nil, nil),
		malformed: prometheus.NewDesc(
			"lidarview_malformed_frames_total",
			"Frames skipped because their payload did not match their type.", nil, nil),
		compositePoints: prometheus.NewDesc(
			"lidarview_composite_points",
			"Points in the current composite, by layer.",
			[]string{"layer"}, nil),
		bufferCapacity: prometheus.NewDesc(
			"lidarview_buffer_capacity_points",
			"Allocated point buffer slots, by buffer.",
			[]string{"buffer"}, nil),
		bufferUsed: prometheus.NewDesc(
			"lidarview_buffer_used_points",
			"Point buffer slots holding valid data, by buffer.",
			[]string{"buffer"}, nil),
		cacheState: prometheus.NewDesc(
			"lidarview_cache_state",
			"Background cache state (0=empty, 1=cached, 2=refreshing).", nil, nil),
	}
}

func (c *compositorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesProcessed
	ch <- c.bgIngests
	ch <- c.invalidations
	ch <- c.malformed
	ch <- c.compositePoints
	ch <- c.bufferCapacity
	ch <- c.bufferUsed
	ch <- c.cacheState
}

func (c *compositorCollector) Collect(ch chan<- prometheus.Metric) {
	counters := c.comp.Counters()
	ch <- prometheus.MustNewConstMetric(c.framesProcessed, prometheus.CounterValue, float64(counters.FramesProcessed))
	ch <- prometheus.MustNewConstMetric(c.bgIngests, prometheus.CounterValue, float64(counters.BackgroundIngests))
	ch <- prometheus.MustNewConstMetric(c.invalidations, prometheus.CounterValue, float64(counters.Invalidations))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(counters.MalformedFrames))

	stats := c.comp.Stats()
	ch <- prometheus.MustNewConstMetric(c.compositePoints, prometheus.GaugeValue, float64(stats.Background), "background")
	ch <- prometheus.MustNewConstMetric(c.compositePoints, prometheus.GaugeValue, float64(stats.Foreground), "foreground")

	buf := c.comp.BufferStats()
	ch <- prometheus.MustNewConstMetric(c.bufferCapacity, prometheus.GaugeValue, float64(buf.BgCapacity), "background")
	ch <- prometheus.MustNewConstMetric(c.bufferCapacity, prometheus.GaugeValue, float64(buf.FgCapacity), "foreground")
	ch <- prometheus.MustNewConstMetric(c.bufferUsed, prometheus.GaugeValue, float64(buf.BgUsed), "background")
	ch <- prometheus.MustNewConstMetric(c.bufferUsed, prometheus.GaugeValue, float64(buf.FgUsed), "foreground")

	ch <- prometheus.MustNewConstMetric(c.cacheState, prometheus.GaugeValue, float64(c.comp.CacheState()))
}
