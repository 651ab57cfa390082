package view

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/lidarview/internal/monitoring"
)

// CompositeStats are the aggregate point counts describing what will be
// rendered this frame. Total is always Background+Foreground.
type CompositeStats struct {
	Background int
	Foreground int
	Total      int
}

// BufferStats reports capacity/used for both growable buffers. The renderer
// draws BgUsed/FgUsed points; the capacities exist only to avoid churn.
type BufferStats struct {
	BgCapacity int
	BgUsed     int
	FgCapacity int
	FgUsed     int
}

// CompositorCounters are monotonic event counts for telemetry.
type CompositorCounters struct {
	FramesProcessed   uint64
	BackgroundIngests uint64
	Invalidations     uint64
	MalformedFrames   uint64
	ForegroundFrames  uint64
	FullFrames        uint64
}

// Compositor is the single entry point for incoming frames. All mutation
// happens via ProcessFrame/ClearCache/MarkRefreshing from one logical writer
// (the stream or replay loop); all read accessors may be called concurrently
// from the render loop. One coarse mutex guards the whole state so the
// renderer always observes background, foreground and cache state from the
// same frame.
type Compositor struct {
	mu         sync.Mutex
	background *backgroundCache
	foreground *ForegroundBuffer
	stats      CompositeStats

	// Event listeners (cache transitions) for the history store. Invoked
	// outside the lock.
	onEvent func(CacheEvent)

	framesProcessed   atomic.Uint64
	backgroundIngests atomic.Uint64
	invalidations     atomic.Uint64
	malformedFrames   atomic.Uint64
	foregroundFrames  atomic.Uint64
	fullFrames        atomic.Uint64
}

// CacheEvent describes a background cache transition, for telemetry and the
// history store.
type CacheEvent struct {
	Kind           CacheEventKind
	SequenceNumber uint64
	PointCount     int
	TimestampNanos int64
}

// CacheEventKind enumerates the cache transitions worth recording.
type CacheEventKind int

const (
	EventBackgroundIngested CacheEventKind = iota
	EventCacheInvalidated
	EventCacheCleared
)

func (k CacheEventKind) String() string {
	switch k {
	case EventBackgroundIngested:
		return "background_ingested"
	case EventCacheInvalidated:
		return "cache_invalidated"
	case EventCacheCleared:
		return "cache_cleared"
	}
	return "unknown"
}

// NewCompositor creates an empty compositor.
func NewCompositor() *Compositor {
	return &Compositor{
		background: newBackgroundCache(),
		foreground: NewForegroundBuffer(),
	}
}

// SetEventSink registers a callback invoked after each cache transition.
// Must be set before the frame loop starts.
func (c *Compositor) SetEventSink(fn func(CacheEvent)) {
	c.onEvent = fn
}

// ProcessFrame updates the composite state for one incoming bundle. It never
// returns an error: malformed frames degrade to no-ops on the affected
// sub-update, because a renderer must not crash mid-frame on one bad bundle.
func (c *Compositor) ProcessFrame(frame *FrameBundle) {
	if frame == nil {
		c.malformedFrames.Add(1)
		return
	}
	c.framesProcessed.Add(1)

	var events []CacheEvent

	c.mu.Lock()
	switch frame.FrameType {
	case FrameTypeBackground:
		if frame.Background == nil {
			c.malformedFrames.Add(1)
			break
		}
		c.background.ingest(frame.Background)
		c.backgroundIngests.Add(1)
		events = append(events, CacheEvent{
			Kind:           EventBackgroundIngested,
			SequenceNumber: frame.Background.SequenceNumber,
			PointCount:     c.background.pointCount(),
			TimestampNanos: frame.TimestampNanos,
		})

	case FrameTypeForeground:
		// A foreground frame referencing a different background than the one
		// cached means our cache is stale for this frame: drop it and let
		// the stream layer request a fresh snapshot. A backgroundSeq of 0
		// against an empty cache is the normal startup case, not a mismatch.
		if seq, ok := c.background.currentSequence(); ok && frame.BackgroundSeq != seq {
			c.background.invalidate()
			c.invalidations.Add(1)
			events = append(events, CacheEvent{
				Kind:           EventCacheInvalidated,
				SequenceNumber: frame.BackgroundSeq,
				TimestampNanos: frame.TimestampNanos,
			})
			monitoring.Logf("[Compositor] Background cache invalidated: frame %d references seq %d, had seq %d",
				frame.FrameID, frame.BackgroundSeq, seq)
		}
		c.foreground.Write(frame.PointCloud)
		c.foregroundFrames.Add(1)

	case FrameTypeFull:
		// Legacy mode: the whole scene arrives as one cloud. Treated as
		// foreground for buffer/statistics purposes; the background cache is
		// untouched.
		c.foreground.Write(frame.PointCloud)
		c.fullFrames.Add(1)

	default:
		// Delta frames are not implemented; skip rather than guess.
		c.malformedFrames.Add(1)
	}

	c.recomputeStatsLocked()
	c.mu.Unlock()

	c.emit(events)
}

// recomputeStatsLocked rebuilds the composite statistics. Callers hold mu.
func (c *Compositor) recomputeStatsLocked() {
	bg := c.background.pointCount()
	fg := c.foreground.Stats().Used
	c.stats = CompositeStats{Background: bg, Foreground: fg, Total: bg + fg}
}

// Stats returns the composite statistics consistent with the last
// ProcessFrame call.
func (c *Compositor) Stats() CompositeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// BufferStats returns capacity/used for both buffers.
func (c *Compositor) BufferStats() BufferStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	bg := c.background.buffer.Stats()
	fg := c.foreground.Stats()
	return BufferStats{
		BgCapacity: bg.Capacity,
		BgUsed:     bg.Used,
		FgCapacity: fg.Capacity,
		FgUsed:     fg.Used,
	}
}

// CacheState returns the background cache state.
func (c *Compositor) CacheState() CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background.state
}

// CurrentSequence returns the cached background sequence, if any.
func (c *Compositor) CurrentSequence() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background.currentSequence()
}

// CacheStatus returns a human-readable rendering of the cache state:
// "Empty", "Cached (seq N)" or "Refreshing...".
func (c *Compositor) CacheStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background.status()
}

// IsCacheStale reports whether the renderer should request a fresh
// background before compositing.
func (c *Compositor) IsCacheStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background.state == CacheEmpty
}

// MarkRefreshing flags that a background re-request is in flight. Advisory;
// only takes effect while the cache is Empty.
func (c *Compositor) MarkRefreshing() {
	c.mu.Lock()
	c.background.markRefreshing()
	c.mu.Unlock()
}

// ClearCache resets the background cache to Empty, zeroes both buffers' used
// counts and all statistics. Capacity is retained (see buffer shrink policy).
func (c *Compositor) ClearCache() {
	c.mu.Lock()
	c.background.invalidate()
	c.foreground.Clear()
	c.recomputeStatsLocked()
	c.mu.Unlock()

	c.emit([]CacheEvent{{Kind: EventCacheCleared}})
}

// BackgroundPoints returns the cached background attribute arrays. The
// slices alias internal storage and are only valid until the next
// ProcessFrame or ClearCache; the render loop copies them to the GPU within
// the same tick.
func (c *Compositor) BackgroundPoints() (x, y, z []float32, confidence []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background.buffer.Points()
}

// ForegroundPoints returns the current foreground attribute arrays, with the
// same aliasing caveat as BackgroundPoints.
func (c *Compositor) ForegroundPoints() (x, y, z []float32, intensity, classification []uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground.Points()
}

// Counters returns the monotonic telemetry counters.
func (c *Compositor) Counters() CompositorCounters {
	return CompositorCounters{
		FramesProcessed:   c.framesProcessed.Load(),
		BackgroundIngests: c.backgroundIngests.Load(),
		Invalidations:     c.invalidations.Load(),
		MalformedFrames:   c.malformedFrames.Load(),
		ForegroundFrames:  c.foregroundFrames.Load(),
		FullFrames:        c.fullFrames.Load(),
	}
}

func (c *Compositor) emit(events []CacheEvent) {
	if c.onEvent == nil {
		return
	}
	for _, ev := range events {
		c.onEvent(ev)
	}
}
