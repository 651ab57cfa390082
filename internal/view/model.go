// Package view implements the LidarView composite frame cache: it ingests a
// split stream of background and foreground LiDAR frames, maintains a
// sequence-numbered background cache, and composites both into the point set
// the renderer draws each tick.
package view

import "time"

// FrameType specifies the type of frame being streamed.
type FrameType int

const (
	FrameTypeFull       FrameType = 0 // Legacy: all points in one cloud
	FrameTypeForeground FrameType = 1 // Foreground points only, composited over cached background
	FrameTypeBackground FrameType = 2 // Background snapshot refresh
	FrameTypeDelta      FrameType = 3 // Future: incremental update
)

// String returns the wire-friendly name of the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameTypeFull:
		return "full"
	case FrameTypeForeground:
		return "foreground"
	case FrameTypeBackground:
		return "background"
	case FrameTypeDelta:
		return "delta"
	}
	return "unknown"
}

// FrameBundle is the canonical model for a single frame delivered by the
// stream layer. Exactly one of PointCloud/Background is meaningful for a
// given FrameType; use the New*Frame constructors rather than building
// bundles by hand so that invariant holds.
type FrameBundle struct {
	FrameID        uint64
	TimestampNanos int64
	SensorID       string

	FrameType FrameType

	// PointCloud carries the points for full and foreground frames.
	PointCloud *PointCloudFrame

	// Background carries the snapshot for background frames.
	Background *BackgroundSnapshot

	// BackgroundSeq is the background sequence the sender believes is
	// currently valid. Present on foreground frames; zero means the sender
	// has no background.
	BackgroundSeq uint64

	// PlaybackInfo is set on frames read back from a vrlog.
	PlaybackInfo *PlaybackInfo
}

// PointCloudFrame contains foreground or full-frame point data as parallel
// arrays. PointCount is authoritative for rendering even when the arrays are
// supplied with redundant length.
type PointCloudFrame struct {
	FrameID        uint64
	TimestampNanos int64
	SensorID       string

	X              []float32
	Y              []float32
	Z              []float32
	Intensity      []uint8
	Classification []uint8 // 0=background, 1=foreground, 2=ground

	PointCount int
}

// BackgroundSnapshot contains a settled background point cloud.
type BackgroundSnapshot struct {
	SequenceNumber uint64    // Increments on grid reset; assigned by the sender, starting at 1
	TimestampNanos int64     // When the snapshot was taken
	X              []float32 // Background point coordinates
	Y              []float32
	Z              []float32
	Confidence     []uint32 // TimesSeenCount per point
	GridMetadata   GridMetadata
}

// PointCount returns the number of points in the snapshot, or zero when the
// parallel arrays disagree in length (malformed snapshot).
func (s *BackgroundSnapshot) PointCount() int {
	if s == nil {
		return 0
	}
	n := len(s.X)
	if len(s.Y) != n || len(s.Z) != n || len(s.Confidence) != n {
		return 0
	}
	return n
}

// GridMetadata describes the background grid structure.
type GridMetadata struct {
	Rings            int       // Number of laser rings
	AzimuthBins      int       // Number of azimuth bins
	RingElevations   []float32 // Elevation angle per ring (degrees)
	SettlingComplete bool      // True when warmup is done
}

// PlaybackInfo contains playback metadata for replay mode.
type PlaybackInfo struct {
	IsLive            bool
	LogStartNs        int64
	LogEndNs          int64
	PlaybackRate      float32
	Paused            bool
	CurrentFrameIndex uint64
	TotalFrames       uint64
}

// NewBackgroundFrame builds a background-type bundle around a snapshot.
func NewBackgroundFrame(frameID uint64, sensorID string, snapshot *BackgroundSnapshot) *FrameBundle {
	var ts int64
	var seq uint64
	if snapshot != nil {
		ts = snapshot.TimestampNanos
		seq = snapshot.SequenceNumber
	}
	return &FrameBundle{
		FrameID:        frameID,
		TimestampNanos: ts,
		SensorID:       sensorID,
		FrameType:      FrameTypeBackground,
		Background:     snapshot,
		BackgroundSeq:  seq,
	}
}

// NewForegroundFrame builds a foreground-type bundle. backgroundSeq is the
// sequence of the background the points should be composited against; zero
// means "no background".
func NewForegroundFrame(frameID uint64, sensorID string, pc *PointCloudFrame, backgroundSeq uint64) *FrameBundle {
	var ts int64
	if pc != nil {
		ts = pc.TimestampNanos
	}
	return &FrameBundle{
		FrameID:        frameID,
		TimestampNanos: ts,
		SensorID:       sensorID,
		FrameType:      FrameTypeForeground,
		PointCloud:     pc,
		BackgroundSeq:  backgroundSeq,
	}
}

// NewFullFrame builds a legacy full-type bundle carrying the entire scene.
func NewFullFrame(frameID uint64, sensorID string, pc *PointCloudFrame) *FrameBundle {
	var ts int64
	if pc != nil {
		ts = pc.TimestampNanos
	}
	return &FrameBundle{
		FrameID:        frameID,
		TimestampNanos: ts,
		SensorID:       sensorID,
		FrameType:      FrameTypeFull,
		PointCloud:     pc,
	}
}

// NewPointCloudFrame creates a point cloud frame with the current time.
func NewPointCloudFrame(frameID uint64, sensorID string, n int) *PointCloudFrame {
	return &PointCloudFrame{
		FrameID:        frameID,
		TimestampNanos: time.Now().UnixNano(),
		SensorID:       sensorID,
		X:              make([]float32, n),
		Y:              make([]float32, n),
		Z:              make([]float32, n),
		Intensity:      make([]uint8, n),
		Classification: make([]uint8, n),
		PointCount:     n,
	}
}
