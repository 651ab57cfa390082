package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/banshee-data/lidarview/internal/monitoring"
	"github.com/banshee-data/lidarview/internal/view"
)

// FrameSource delivers FrameBundles in arrival order. Implemented by
// FrameStream, vrlog.Replayer and view.SyntheticSource adapters. ReadFrame
// returns io.EOF when the source is exhausted.
type FrameSource interface {
	ReadFrame() (*view.FrameBundle, error)
}

// FrameSink receives a copy of every frame fed to the compositor
// (re-recording during live viewing). Implemented by vrlog.Recorder.
type FrameSink interface {
	Record(frame *view.FrameBundle) error
}

// FeedOptions configure the frame feed loop.
type FeedOptions struct {
	// Realtime paces frames by their timestamps (replay sources). Live gRPC
	// streams arrive already paced and leave this false.
	Realtime bool

	// Rate scales realtime pacing; 0 means 1.0.
	Rate float32

	// Sink, when set, receives every frame after the compositor.
	Sink FrameSink
}

// Feed pumps frames from src into the compositor until the source is
// exhausted or the context is cancelled. This is the single writer context
// required by the compositor's concurrency contract.
func Feed(ctx context.Context, src FrameSource, comp *view.Compositor, opts FeedOptions) error {
	rate := opts.Rate
	if rate == 0 {
		rate = 1.0
	}

	var lastFrameNs int64
	var lastWall time.Time
	wasStale := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := src.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				monitoring.Logf("[Feed] Source exhausted after %d frames", comp.Counters().FramesProcessed)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if opts.Realtime && lastFrameNs > 0 && rate > 0 {
			frameDelta := time.Duration(float64(frame.TimestampNanos-lastFrameNs) / float64(rate))
			wallDelta := time.Since(lastWall)
			if frameDelta > wallDelta {
				time.Sleep(frameDelta - wallDelta)
			}
		}
		lastFrameNs = frame.TimestampNanos
		lastWall = time.Now()

		comp.ProcessFrame(frame)

		if opts.Sink != nil {
			if err := opts.Sink.Record(frame); err != nil {
				monitoring.Logf("[Feed] Failed to record frame %d: %v", frame.FrameID, err)
			}
		}

		// After an invalidation the cache sits Empty until the sender pushes
		// a fresh snapshot (the publisher resends on sequence change). Flag
		// the wait as Refreshing so the status line reflects it.
		stale := comp.IsCacheStale()
		if stale && !wasStale {
			comp.MarkRefreshing()
			monitoring.Logf("[Feed] Background stale after frame %d; awaiting fresh snapshot", frame.FrameID)
		}
		wasStale = stale
	}
}
