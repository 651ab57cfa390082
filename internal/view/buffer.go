// Package view: growable point buffers backing the composite cache.
//
// The buffers exist to avoid reallocation churn when point counts fluctuate
// frame to frame: capacity only grows to fit the current frame, and is
// reclaimed only when a frame stream has been persistently far below
// capacity (see shrinkAfterFrames).
package view

// minBufferCapacity is the smallest allocation the growth policy hands out.
// One Pandar40P packet batch is ~1000 points, so anything smaller just
// guarantees an immediate regrow.
const minBufferCapacity = 1024

// shrinkAfterFrames is the number of consecutive frames a buffer must sit
// below a quarter of its capacity before the next write reallocates down.
const shrinkAfterFrames = 64

// nextCapacity returns the capacity to allocate for a frame needing n slots.
// Rounds up to the next power of two with a floor of minBufferCapacity so a
// run of slightly-growing frames costs a bounded number of reallocations.
func nextCapacity(n int) int {
	if n <= minBufferCapacity {
		return minBufferCapacity
	}
	c := minBufferCapacity
	for c < n {
		c <<= 1
	}
	return c
}

// BufferUsage is a capacity/used pair reported to the renderer and monitor.
type BufferUsage struct {
	Capacity int
	Used     int
}

// growable tracks the shared capacity bookkeeping for a point buffer.
type growable struct {
	capacity    int
	used        int
	underFrames int // consecutive frames with used < capacity/4
}

// plan decides the capacity for a frame of n points and records utilisation
// for the shrink policy. It returns the capacity the attribute slices must
// be (re)allocated to, or 0 when the existing allocation should be kept.
func (g *growable) plan(n int) int {
	switch {
	case n > g.capacity:
		g.underFrames = 0
		g.capacity = nextCapacity(n)
		g.used = n
		return g.capacity
	case g.capacity > minBufferCapacity && n < g.capacity/4:
		g.underFrames++
		if g.underFrames >= shrinkAfterFrames {
			g.underFrames = 0
			g.capacity = nextCapacity(n)
			g.used = n
			return g.capacity
		}
	default:
		g.underFrames = 0
	}
	g.used = n
	return 0
}

// clear drops the used count. Capacity is kept so a replay restart does not
// immediately regrow.
func (g *growable) clear() {
	g.used = 0
	g.underFrames = 0
}

func (g *growable) usage() BufferUsage {
	return BufferUsage{Capacity: g.capacity, Used: g.used}
}

// BackgroundBuffer holds the cached background point attributes
// (x/y/z/confidence parallel arrays).
type BackgroundBuffer struct {
	growable
	x, y, z    []float32
	confidence []uint32
}

// NewBackgroundBuffer returns an empty background buffer. No storage is
// allocated until the first write.
func NewBackgroundBuffer() *BackgroundBuffer {
	return &BackgroundBuffer{}
}

// Write copies a background snapshot's attribute arrays into the buffer,
// growing (or, per policy, shrinking) the allocation as needed. The common
// array length becomes the used count.
func (b *BackgroundBuffer) Write(x, y, z []float32, confidence []uint32) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if len(z) < n {
		n = len(z)
	}
	if len(confidence) < n {
		n = len(confidence)
	}

	if c := b.plan(n); c > 0 {
		b.x = make([]float32, c)
		b.y = make([]float32, c)
		b.z = make([]float32, c)
		b.confidence = make([]uint32, c)
	}
	copy(b.x[:n], x[:n])
	copy(b.y[:n], y[:n])
	copy(b.z[:n], z[:n])
	copy(b.confidence[:n], confidence[:n])
}

// Clear zeroes the used count; capacity is retained.
func (b *BackgroundBuffer) Clear() { b.clear() }

// Stats returns the capacity/used pair.
func (b *BackgroundBuffer) Stats() BufferUsage { return b.usage() }

// Points returns the valid region of the attribute arrays. The slices alias
// the buffer's storage and are only valid until the next Write or Clear.
func (b *BackgroundBuffer) Points() (x, y, z []float32, confidence []uint32) {
	n := b.used
	return b.x[:n], b.y[:n], b.z[:n], b.confidence[:n]
}

// ForegroundBuffer holds the current frame's foreground point attributes
// (x/y/z/intensity/classification parallel arrays).
type ForegroundBuffer struct {
	growable
	x, y, z        []float32
	intensity      []uint8
	classification []uint8
}

// NewForegroundBuffer returns an empty foreground buffer.
func NewForegroundBuffer() *ForegroundBuffer {
	return &ForegroundBuffer{}
}

// Write copies a point cloud frame into the buffer. pointCount is the
// authoritative count from the frame; it is clamped to the shortest
// supplied coordinate array. Intensity and classification may be absent or
// short; missing tail entries are zeroed.
func (f *ForegroundBuffer) Write(pc *PointCloudFrame) {
	if pc == nil {
		f.plan(0)
		return
	}

	n := pc.PointCount
	if n < 0 {
		n = 0
	}
	if len(pc.X) < n {
		n = len(pc.X)
	}
	if len(pc.Y) < n {
		n = len(pc.Y)
	}
	if len(pc.Z) < n {
		n = len(pc.Z)
	}

	if c := f.plan(n); c > 0 {
		f.x = make([]float32, c)
		f.y = make([]float32, c)
		f.z = make([]float32, c)
		f.intensity = make([]uint8, c)
		f.classification = make([]uint8, c)
	}
	copy(f.x[:n], pc.X[:n])
	copy(f.y[:n], pc.Y[:n])
	copy(f.z[:n], pc.Z[:n])
	copyOrZero(f.intensity[:n], pc.Intensity)
	copyOrZero(f.classification[:n], pc.Classification)
}

// Clear zeroes the used count; capacity is retained.
func (f *ForegroundBuffer) Clear() { f.clear() }

// Stats returns the capacity/used pair.
func (f *ForegroundBuffer) Stats() BufferUsage { return f.usage() }

// Points returns the valid region of the attribute arrays. The slices alias
// the buffer's storage and are only valid until the next Write or Clear.
func (f *ForegroundBuffer) Points() (x, y, z []float32, intensity, classification []uint8) {
	n := f.used
	return f.x[:n], f.y[:n], f.z[:n], f.intensity[:n], f.classification[:n]
}

// copyOrZero copies src into dst, zero-filling any tail src does not cover.
func copyOrZero(dst, src []uint8) {
	n := copy(dst, src)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
