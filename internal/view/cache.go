package view

import "fmt"

// CacheState is the background cache's validity state.
type CacheState int

const (
	// CacheEmpty means no background is cached (initial state, or after an
	// invalidation).
	CacheEmpty CacheState = iota
	// CacheCached means a background snapshot is loaded and tagged with a
	// sequence number.
	CacheCached
	// CacheRefreshing means a background replacement is in flight. The core
	// never enters this state on its own; the stream layer sets it while
	// re-requesting a snapshot after an invalidation.
	CacheRefreshing
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "Empty"
	case CacheCached:
		return "Cached"
	case CacheRefreshing:
		return "Refreshing"
	}
	return "Unknown"
}

// backgroundCache owns the most recent background snapshot's derived render
// data and its validity state. Not safe for concurrent use; the Compositor
// serialises access.
type backgroundCache struct {
	state    CacheState
	sequence uint64
	buffer   *BackgroundBuffer
}

func newBackgroundCache() *backgroundCache {
	return &backgroundCache{
		state:  CacheEmpty,
		buffer: NewBackgroundBuffer(),
	}
}

// ingest copies the snapshot's points into the background buffer and moves
// the cache to Cached(seq). A new background always supersedes prior state,
// including a zero-point snapshot: statistics track the point count while
// state tracks presence of an entry.
func (c *backgroundCache) ingest(snapshot *BackgroundSnapshot) {
	if snapshot == nil {
		return
	}
	n := snapshot.PointCount()
	c.buffer.Write(snapshot.X[:n], snapshot.Y[:n], snapshot.Z[:n], snapshot.Confidence[:n])
	c.sequence = snapshot.SequenceNumber
	c.state = CacheCached
}

// validate reports whether candidateSeq matches the currently cached
// sequence.
func (c *backgroundCache) validate(candidateSeq uint64) bool {
	return c.state == CacheCached && c.sequence == candidateSeq
}

// invalidate forces the cache to Empty and drops the cached points.
func (c *backgroundCache) invalidate() {
	c.state = CacheEmpty
	c.sequence = 0
	c.buffer.Clear()
}

// markRefreshing flags a replacement in flight. No-op unless Empty: a valid
// cache keeps serving until the replacement arrives.
func (c *backgroundCache) markRefreshing() {
	if c.state == CacheEmpty {
		c.state = CacheRefreshing
	}
}

// currentSequence returns the cached sequence number and whether one exists.
func (c *backgroundCache) currentSequence() (uint64, bool) {
	if c.state != CacheCached {
		return 0, false
	}
	return c.sequence, true
}

// pointCount returns the number of cached background points (0 unless Cached).
func (c *backgroundCache) pointCount() int {
	if c.state != CacheCached {
		return 0
	}
	return c.buffer.Stats().Used
}

// status renders the cache state for the UI status line.
func (c *backgroundCache) status() string {
	switch c.state {
	case CacheCached:
		return fmt.Sprintf("Cached (seq %d)", c.sequence)
	case CacheRefreshing:
		return "Refreshing..."
	default:
		return "Empty"
	}
}
