package view

import (
	"math/rand"
	"time"

	"github.com/chewxy/math32"
)

// SyntheticSource generates a synthetic split frame stream for demos and
// tests: a background snapshot first, then foreground frames referencing its
// sequence, with periodic background refreshes and optional forced sequence
// bumps to exercise cache invalidation.
type SyntheticSource struct {
	sensorID string
	startNs  int64

	// Configuration
	BackgroundPoints int     // points per background snapshot
	ForegroundPoints int     // points per foreground frame
	FrameRate        float64 // frames per second (timestamps only; no pacing)
	AreaRadius       float32 // metres, radius of the scene
	BackgroundEvery  int     // foreground frames between background refreshes
	ReseqEvery       int     // background refreshes between forced sequence bumps (0 = never)

	frameID      uint64
	seq          uint64
	sinceRefresh int
	refreshes    int
	pending      []*FrameBundle
	rng          *rand.Rand
}

// NewSyntheticSource creates a synthetic source with demo defaults.
func NewSyntheticSource(sensorID string) *SyntheticSource {
	return &SyntheticSource{
		sensorID:         sensorID,
		startNs:          time.Now().UnixNano(),
		BackgroundPoints: 20000,
		ForegroundPoints: 2000,
		FrameRate:        10.0,
		AreaRadius:       50.0,
		BackgroundEvery:  300, // 30s of foreground at 10Hz
		ReseqEvery:       0,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ReadFrame returns the next synthetic frame. Never returns an error; the
// stream is unbounded.
func (g *SyntheticSource) ReadFrame() (*FrameBundle, error) {
	if len(g.pending) > 0 {
		frame := g.pending[0]
		g.pending = g.pending[1:]
		return frame, nil
	}

	// First frame, or refresh interval reached: emit a background. On a
	// forced resequence, lead with a foreground carrying the new sequence so
	// the viewer sees the invalidate-then-refresh path a real grid reset
	// produces.
	if g.seq == 0 || (g.BackgroundEvery > 0 && g.sinceRefresh >= g.BackgroundEvery) {
		g.sinceRefresh = 0
		g.refreshes++
		bumped := g.seq == 0
		if g.ReseqEvery > 0 && g.refreshes%g.ReseqEvery == 0 {
			bumped = true
		}
		if bumped {
			g.seq++
		}
		bg := g.backgroundFrame()
		if bumped && g.refreshes > 1 {
			g.pending = append(g.pending, bg)
			return g.foregroundFrame(), nil
		}
		return bg, nil
	}

	g.sinceRefresh++
	return g.foregroundFrame(), nil
}

// CurrentSequence returns the sequence number the source is stamping on
// foreground frames.
func (g *SyntheticSource) CurrentSequence() uint64 { return g.seq }

func (g *SyntheticSource) nextTimestamp() int64 {
	if g.FrameRate <= 0 {
		return g.startNs
	}
	return g.startNs + int64(float64(g.frameID)*1e9/g.FrameRate)
}

func (g *SyntheticSource) backgroundFrame() *FrameBundle {
	g.frameID++
	ts := g.nextTimestamp()

	n := g.BackgroundPoints
	snapshot := &BackgroundSnapshot{
		SequenceNumber: g.seq,
		TimestampNanos: ts,
		X:              make([]float32, n),
		Y:              make([]float32, n),
		Z:              make([]float32, n),
		Confidence:     make([]uint32, n),
		GridMetadata: GridMetadata{
			Rings:            40,
			AzimuthBins:      1800,
			SettlingComplete: true,
		},
	}

	// Static scene: a disc of near-ground points.
	for i := 0; i < n; i++ {
		angle := g.rng.Float32() * 2 * math32.Pi
		r := math32.Sqrt(g.rng.Float32()) * g.AreaRadius
		snapshot.X[i] = r * math32.Cos(angle)
		snapshot.Y[i] = r * math32.Sin(angle)
		snapshot.Z[i] = g.rng.Float32()*0.2 - 0.1
		snapshot.Confidence[i] = uint32(50 + g.rng.Intn(200))
	}

	frame := NewBackgroundFrame(g.frameID, g.sensorID, snapshot)
	frame.TimestampNanos = ts
	return frame
}

func (g *SyntheticSource) foregroundFrame() *FrameBundle {
	g.frameID++
	ts := g.nextTimestamp()

	n := g.ForegroundPoints
	pc := &PointCloudFrame{
		FrameID:        g.frameID,
		TimestampNanos: ts,
		SensorID:       g.sensorID,
		X:              make([]float32, n),
		Y:              make([]float32, n),
		Z:              make([]float32, n),
		Intensity:      make([]uint8, n),
		Classification: make([]uint8, n),
		PointCount:     n,
	}

	// Moving objects: clumps orbiting the sensor.
	elapsed := float32(ts-g.startNs) / 1e9
	clumps := 10
	for i := 0; i < n; i++ {
		clump := i % clumps
		baseAngle := float32(clump) * 2 * math32.Pi / float32(clumps)
		angle := baseAngle + elapsed*0.25
		cx := 20 * math32.Cos(angle)
		cy := 20 * math32.Sin(angle)

		pc.X[i] = cx + g.rng.Float32()*2 - 1
		pc.Y[i] = cy + g.rng.Float32()*2 - 1
		pc.Z[i] = g.rng.Float32() * 2
		pc.Intensity[i] = uint8(100 + g.rng.Intn(100))
		pc.Classification[i] = 1
	}

	return NewForegroundFrame(g.frameID, g.sensorID, pc, g.seq)
}
