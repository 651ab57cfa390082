package vrlog

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/banshee-data/lidarview/internal/view"
)

func recordTestLog(t *testing.T, frames []*view.FrameBundle) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test"+FileExtension)
	rec, err := NewRecorder(path, "test-sensor")
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	for _, f := range frames {
		if err := rec.Record(f); err != nil {
			t.Fatalf("failed to record frame %d: %v", f.FrameID, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("failed to close recorder: %v", err)
	}
	return path
}

func testFrames(n int) []*view.FrameBundle {
	frames := make([]*view.FrameBundle, 0, n)
	for i := 0; i < n; i++ {
		frameID := uint64(i + 1)
		ts := int64(1000000000 + i*100000000)
		if i == 0 {
			snapshot := &view.BackgroundSnapshot{
				SequenceNumber: 1,
				TimestampNanos: ts,
				X:              []float32{1, 2},
				Y:              []float32{3, 4},
				Z:              []float32{5, 6},
				Confidence:     []uint32{10, 20},
			}
			f := view.NewBackgroundFrame(frameID, "test-sensor", snapshot)
			frames = append(frames, f)
			continue
		}
		pc := &view.PointCloudFrame{
			FrameID:        frameID,
			TimestampNanos: ts,
			SensorID:       "test-sensor",
			X:              []float32{float32(i)},
			Y:              []float32{float32(i)},
			Z:              []float32{0},
			PointCount:     1,
		}
		frames = append(frames, view.NewForegroundFrame(frameID, "test-sensor", pc, 1))
	}
	return frames
}

func TestRecorder_RecordAndClose(t *testing.T) {
	path := recordTestLog(t, testFrames(10))

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	header := rep.Header()
	if header.SensorID != "test-sensor" {
		t.Errorf("expected sensor_id test-sensor, got %q", header.SensorID)
	}
	if header.TotalFrames != 10 {
		t.Errorf("expected 10 frames, got %d", header.TotalFrames)
	}
	if header.StartNs != 1000000000 {
		t.Errorf("expected start_ns=1000000000, got %d", header.StartNs)
	}
	if header.EndNs != 1000000000+9*100000000 {
		t.Errorf("unexpected end_ns %d", header.EndNs)
	}
}

func TestReplayer_RoundTrip(t *testing.T) {
	frames := testFrames(10)
	path := recordTestLog(t, frames)

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	for i, want := range frames {
		got, err := rep.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: read failed: %v", i, err)
		}
		if got.FrameID != want.FrameID {
			t.Errorf("frame %d: expected FrameID=%d, got %d", i, want.FrameID, got.FrameID)
		}
		if got.FrameType != want.FrameType {
			t.Errorf("frame %d: expected type %v, got %v", i, want.FrameType, got.FrameType)
		}
		if got.TimestampNanos != want.TimestampNanos {
			t.Errorf("frame %d: expected ts=%d, got %d", i, want.TimestampNanos, got.TimestampNanos)
		}
		if got.PlaybackInfo == nil {
			t.Fatalf("frame %d: expected playback info", i)
		}
		if got.PlaybackInfo.CurrentFrameIndex != uint64(i) {
			t.Errorf("frame %d: expected playback index %d, got %d", i, i, got.PlaybackInfo.CurrentFrameIndex)
		}
		if got.PlaybackInfo.TotalFrames != 10 {
			t.Errorf("frame %d: expected total frames 10, got %d", i, got.PlaybackInfo.TotalFrames)
		}
	}

	if _, err := rep.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF at end of log, got %v", err)
	}
}

func TestReplayer_BackgroundSurvivesRoundTrip(t *testing.T) {
	frames := testFrames(2)
	path := recordTestLog(t, frames)

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	got, err := rep.ReadFrame()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Background == nil {
		t.Fatal("expected background payload")
	}
	if got.Background.SequenceNumber != 1 {
		t.Errorf("expected sequence 1, got %d", got.Background.SequenceNumber)
	}
	if got.Background.PointCount() != 2 {
		t.Errorf("expected 2 background points, got %d", got.Background.PointCount())
	}
}

func TestReplayer_Seek(t *testing.T) {
	path := recordTestLog(t, testFrames(10))

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	if err := rep.Seek(7); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	got, err := rep.ReadFrame()
	if err != nil {
		t.Fatalf("read after seek failed: %v", err)
	}
	if got.FrameID != 8 {
		t.Errorf("expected FrameID=8 after Seek(7), got %d", got.FrameID)
	}

	if err := rep.Seek(100); err == nil {
		t.Error("expected error for out-of-range seek")
	}
}

func TestReplayer_SeekToTimestamp(t *testing.T) {
	path := recordTestLog(t, testFrames(10))

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	// Frame 5 (index 4) has ts 1000000000+4*100000000; seeking slightly
	// before it must land on it.
	if err := rep.SeekToTimestamp(1000000000 + 4*100000000 - 1); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	got, err := rep.ReadFrame()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.FrameID != 5 {
		t.Errorf("expected FrameID=5, got %d", got.FrameID)
	}

	// Beyond the end clamps to the last frame.
	if err := rep.SeekToTimestamp(1 << 60); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	got, err = rep.ReadFrame()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.FrameID != 10 {
		t.Errorf("expected last frame, got %d", got.FrameID)
	}
}

func TestReplayer_ChunkRotation(t *testing.T) {
	// More frames than one chunk holds forces rotation on record and chunk
	// reloads on replay.
	n := ChunkSize + 50
	frames := testFrames(n)
	path := recordTestLog(t, frames)

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	if rep.TotalFrames() != uint64(n) {
		t.Fatalf("expected %d frames, got %d", n, rep.TotalFrames())
	}

	var count int
	for {
		frame, err := rep.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read failed at frame %d: %v", count, err)
		}
		if frame.FrameID != uint64(count+1) {
			t.Fatalf("expected FrameID=%d, got %d", count+1, frame.FrameID)
		}
		count++
	}
	if count != n {
		t.Errorf("expected %d frames replayed, got %d", n, count)
	}

	// Seek back across the chunk boundary.
	if err := rep.Seek(5); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	got, err := rep.ReadFrame()
	if err != nil {
		t.Fatalf("read after backward seek failed: %v", err)
	}
	if got.FrameID != 6 {
		t.Errorf("expected FrameID=6, got %d", got.FrameID)
	}
}

func TestReplayer_PlaybackFlags(t *testing.T) {
	path := recordTestLog(t, testFrames(3))

	rep, err := NewReplayer(path)
	if err != nil {
		t.Fatalf("failed to open replayer: %v", err)
	}
	defer rep.Close()

	rep.SetPaused(true)
	rep.SetRate(2.5)

	got, err := rep.ReadFrame()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !got.PlaybackInfo.Paused {
		t.Error("expected paused flag set")
	}
	if got.PlaybackInfo.PlaybackRate != 2.5 {
		t.Errorf("expected rate 2.5, got %f", got.PlaybackInfo.PlaybackRate)
	}
}

func TestRecorder_ClosedRejectsRecord(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "x"+FileExtension), "s")
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := rec.Record(testFrames(1)[0]); err == nil {
		t.Error("expected error recording to a closed recorder")
	}
}

func TestNewReplayer_MissingLog(t *testing.T) {
	if _, err := NewReplayer(filepath.Join(t.TempDir(), "missing.vrlog")); err == nil {
		t.Error("expected error opening a missing log")
	}
}
