package view

import (
	"testing"
)

func TestSyntheticSource_FirstFrameIsBackground(t *testing.T) {
	gen := NewSyntheticSource("test-sensor")

	frame, err := gen.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.FrameType != FrameTypeBackground {
		t.Errorf("expected first frame to be background, got %v", frame.FrameType)
	}
	if frame.Background == nil {
		t.Fatal("expected background payload")
	}
	if frame.Background.SequenceNumber != 1 {
		t.Errorf("expected sequence 1, got %d", frame.Background.SequenceNumber)
	}
	if got := frame.Background.PointCount(); got != gen.BackgroundPoints {
		t.Errorf("expected %d background points, got %d", gen.BackgroundPoints, got)
	}
}

func TestSyntheticSource_ForegroundReferencesSequence(t *testing.T) {
	gen := NewSyntheticSource("test-sensor")

	if _, err := gen.ReadFrame(); err != nil { // background
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		frame, err := gen.ReadFrame()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frame.FrameType != FrameTypeForeground {
			t.Fatalf("frame %d: expected foreground, got %v", i, frame.FrameType)
		}
		if frame.BackgroundSeq != gen.CurrentSequence() {
			t.Errorf("frame %d: expected BackgroundSeq=%d, got %d", i, gen.CurrentSequence(), frame.BackgroundSeq)
		}
		if frame.PointCloud.PointCount != gen.ForegroundPoints {
			t.Errorf("frame %d: expected %d points, got %d", i, gen.ForegroundPoints, frame.PointCloud.PointCount)
		}
	}
}

func TestSyntheticSource_BackgroundRefreshKeepsSequence(t *testing.T) {
	gen := NewSyntheticSource("test-sensor")
	gen.BackgroundEvery = 5
	gen.ReseqEvery = 0

	var backgrounds int
	for i := 0; i < 30; i++ {
		frame, err := gen.ReadFrame()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frame.FrameType == FrameTypeBackground {
			backgrounds++
			if frame.Background.SequenceNumber != 1 {
				t.Errorf("refresh without reseq must keep sequence 1, got %d", frame.Background.SequenceNumber)
			}
		}
	}
	if backgrounds < 2 {
		t.Errorf("expected periodic background refreshes, got %d", backgrounds)
	}
}

func TestSyntheticSource_ForcedResequence(t *testing.T) {
	gen := NewSyntheticSource("test-sensor")
	gen.BackgroundEvery = 3
	gen.ReseqEvery = 2

	comp := NewCompositor()
	for i := 0; i < 50; i++ {
		frame, err := gen.ReadFrame()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		comp.ProcessFrame(frame)
	}

	// The forced bumps must have driven the invalidate-then-refresh path at
	// least once, and the stream must always converge back to Cached.
	if got := comp.Counters().Invalidations; got == 0 {
		t.Error("expected forced resequences to invalidate the cache")
	}
	if got := gen.CurrentSequence(); got < 2 {
		t.Errorf("expected sequence to advance past 1, got %d", got)
	}
}

func TestSyntheticSource_TimestampsAdvance(t *testing.T) {
	gen := NewSyntheticSource("test-sensor")

	var last int64
	for i := 0; i < 5; i++ {
		frame, err := gen.ReadFrame()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frame.TimestampNanos <= last {
			t.Errorf("frame %d: timestamp %d did not advance past %d", i, frame.TimestampNanos, last)
		}
		last = frame.TimestampNanos
	}
}
