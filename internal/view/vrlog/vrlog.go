// Package vrlog provides recording and replay of LidarView frame streams.
//
// A log is a directory: header.json (metadata), index.bin (fixed-width seek
// index) and frames/chunk_NNNN.pb files of length-prefixed protobuf
// FrameBundles, ChunkSize frames per chunk.
package vrlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/lidarview/internal/view"
	"github.com/banshee-data/lidarview/internal/view/wire"
)

// FileExtension is the extension for LidarView log directories.
const FileExtension = ".vrlog"

// ChunkSize is the number of frames per chunk file.
const ChunkSize = 1000

// LogHeader contains metadata about a recorded log.
type LogHeader struct {
	Version     string `json:"version"`
	CreatedNs   int64  `json:"created_ns"`
	SensorID    string `json:"sensor_id"`
	TotalFrames uint64 `json:"total_frames"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	FrameID     uint64
	TimestampNs int64
	ChunkID     uint32
	Offset      uint32
}

// Recorder writes FrameBundles to a log directory.
type Recorder struct {
	basePath string
	sensorID string

	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunkFile    *os.File
	chunkOffset  uint32

	frameCount uint64
	startNs    int64
	endNs      int64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder writing to the given directory. If path is
// empty, a timestamped directory is created under the OS temp dir.
func NewRecorder(basePath, sensorID string) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("lidarview_%s_%d%s", sensorID, time.Now().Unix(), FileExtension))
	}

	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Recorder{
		basePath:     basePath,
		sensorID:     sensorID,
		currentChunk: -1,
		index:        make([]IndexEntry, 0),
		header: LogHeader{
			Version:   "1.0",
			CreatedNs: time.Now().UnixNano(),
			SensorID:  sensorID,
		},
	}, nil
}

// Record appends a FrameBundle to the log.
func (r *Recorder) Record(frame *view.FrameBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if frame == nil {
		return fmt.Errorf("nil frame")
	}

	if r.startNs == 0 {
		r.startNs = frame.TimestampNanos
	}
	r.endNs = frame.TimestampNanos

	chunkIdx := int(r.frameCount / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data := wire.MarshalFrameBundle(frame)

	// Length-prefixed frame record.
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := r.chunkFile.Write(data); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		FrameID:     frame.FrameID,
		TimestampNs: frame.TimestampNanos,
		ChunkID:     uint32(chunkIdx),
		Offset:      r.chunkOffset,
	})

	r.chunkOffset += uint32(4 + len(data))
	r.frameCount++

	return nil
}

// rotateChunk closes the current chunk file and opens the next one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}

	chunkPath := filepath.Join(r.basePath, "frames", fmt.Sprintf("chunk_%04d.pb", chunkIdx))
	f, err := os.Create(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0

	return nil
}

// Close finalises the log, writing the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		r.chunkFile.Close()
	}

	r.header.TotalFrames = r.frameCount
	r.header.StartNs = r.startNs
	r.header.EndNs = r.endNs

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, "header.json"), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	indexFile, err := os.Create(filepath.Join(r.basePath, "index.bin"))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer indexFile.Close()

	for _, entry := range r.index {
		if err := binary.Write(indexFile, binary.LittleEndian, entry.FrameID); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.TimestampNs); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.ChunkID); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.Offset); err != nil {
			return err
		}
	}

	return nil
}

// Path returns the base path of the log.
func (r *Recorder) Path() string {
	return r.basePath
}

// FrameCount returns the number of frames recorded so far.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// Replayer reads FrameBundles back from a log directory.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry

	currentFrame uint64
	paused       bool
	rate         float32

	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a log directory for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
		rate:         1.0,
	}

	headerData, err := os.ReadFile(filepath.Join(basePath, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	indexFile, err := os.Open(filepath.Join(basePath, "index.bin"))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer indexFile.Close()

	r.index = make([]IndexEntry, 0, r.header.TotalFrames)
	for {
		var entry IndexEntry
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.FrameID); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.TimestampNs); err != nil {
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.ChunkID); err != nil {
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.Offset); err != nil {
			return nil, err
		}
		r.index = append(r.index, entry)
	}

	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalFrames returns the number of frames in the log.
func (r *Replayer) TotalFrames() uint64 {
	return r.header.TotalFrames
}

// CurrentFrame returns the index of the next frame to be read.
func (r *Replayer) CurrentFrame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFrame
}

// Seek positions the replayer at a specific frame index.
func (r *Replayer) Seek(frameIdx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameIdx >= uint64(len(r.index)) {
		return fmt.Errorf("frame index out of range: %d >= %d", frameIdx, len(r.index))
	}

	r.currentFrame = frameIdx
	return nil
}

// SeekToTimestamp positions the replayer at the first frame at or after the
// given timestamp, or the last frame when the timestamp is beyond the log.
func (r *Replayer) SeekToTimestamp(timestampNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return fmt.Errorf("empty log")
	}

	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimestampNs >= timestampNs
	})
	if i >= len(r.index) {
		i = len(r.index) - 1
	}
	r.currentFrame = uint64(i)
	return nil
}

// ReadFrame reads the current frame and advances. Returns io.EOF at the end
// of the log.
func (r *Replayer) ReadFrame() (*view.FrameBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFrame >= uint64(len(r.index)) {
		return nil, io.EOF
	}

	entry := r.index[r.currentFrame]

	if int(entry.ChunkID) != r.currentChunk {
		if err := r.loadChunk(int(entry.ChunkID)); err != nil {
			return nil, err
		}
	}

	offset := entry.Offset
	if offset+4 > uint32(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid frame offset")
	}

	frameLen := binary.LittleEndian.Uint32(r.chunkData[offset:])
	offset += 4

	if offset+frameLen > uint32(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid frame length")
	}

	frame, err := wire.UnmarshalFrameBundle(r.chunkData[offset : offset+frameLen])
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	frame.PlaybackInfo = &view.PlaybackInfo{
		IsLive:            false,
		LogStartNs:        r.header.StartNs,
		LogEndNs:          r.header.EndNs,
		PlaybackRate:      r.rate,
		Paused:            r.paused,
		CurrentFrameIndex: r.currentFrame,
		TotalFrames:       r.header.TotalFrames,
	}

	r.currentFrame++
	return frame, nil
}

// loadChunk reads a chunk file into memory.
func (r *Replayer) loadChunk(chunkIdx int) error {
	chunkPath := filepath.Join(r.basePath, "frames", fmt.Sprintf("chunk_%04d.pb", chunkIdx))
	data, err := os.ReadFile(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}

	r.chunkData = data
	r.currentChunk = chunkIdx
	return nil
}

// SetPaused sets the paused flag carried in PlaybackInfo.
func (r *Replayer) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

// SetRate sets the playback rate carried in PlaybackInfo.
func (r *Replayer) SetRate(rate float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
}

// Close releases the replayer. Chunk data is held in memory, so there is
// nothing to close beyond dropping the reference.
func (r *Replayer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkData = nil
	return nil
}
