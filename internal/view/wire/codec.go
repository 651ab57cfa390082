// Package wire encodes and decodes the LidarView frame stream messages
// defined in proto/lidarview.proto. The messages are small and the field set
// is owned by this module, so the codec works the wire format directly with
// protowire instead of carrying generated pb types.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/lidarview/internal/view"
)

// Field numbers from proto/lidarview.proto. Keep in sync with the schema.
const (
	// StreamRequest
	reqSensorID        = 1
	reqIncludePoints   = 2
	reqPointDecimation = 3
	reqDecimationRatio = 4

	// PointCloudFrame
	pcFrameID        = 1
	pcTimestampNs    = 2
	pcSensorID       = 3
	pcX              = 4
	pcY              = 5
	pcZ              = 6
	pcIntensity      = 7
	pcClassification = 8
	pcPointCount     = 9

	// GridMetadata
	gmRings            = 1
	gmAzimuthBins      = 2
	gmRingElevations   = 3
	gmSettlingComplete = 4

	// BackgroundSnapshot
	bgSequenceNumber = 1
	bgTimestampNs    = 2
	bgX              = 3
	bgY              = 4
	bgZ              = 5
	bgConfidence     = 6
	bgGrid           = 7

	// FrameBundle
	fbFrameID       = 1
	fbTimestampNs   = 2
	fbSensorID      = 3
	fbFrameType     = 4
	fbPointCloud    = 5
	fbBackground    = 6
	fbBackgroundSeq = 7
)

// StreamRequest mirrors the proto StreamRequest.
type StreamRequest struct {
	SensorID        string
	IncludePoints   bool
	PointDecimation int32
	DecimationRatio float32
}

// MarshalStreamRequest encodes a StreamRequest.
func MarshalStreamRequest(req *StreamRequest) []byte {
	var b []byte
	if req == nil {
		return b
	}
	if req.SensorID != "" {
		b = protowire.AppendTag(b, reqSensorID, protowire.BytesType)
		b = protowire.AppendString(b, req.SensorID)
	}
	if req.IncludePoints {
		b = protowire.AppendTag(b, reqIncludePoints, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if req.PointDecimation != 0 {
		b = protowire.AppendTag(b, reqPointDecimation, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(req.PointDecimation)))
	}
	if req.DecimationRatio != 0 {
		b = protowire.AppendTag(b, reqDecimationRatio, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(req.DecimationRatio))
	}
	return b
}

// UnmarshalStreamRequest decodes a StreamRequest.
func UnmarshalStreamRequest(b []byte) (*StreamRequest, error) {
	req := &StreamRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("stream request: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case reqSensorID:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			req.SensorID = s
			b = b[n:]
		case reqIncludePoints:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			req.IncludePoints = v != 0
			b = b[n:]
		case reqPointDecimation:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			req.PointDecimation = int32(v)
			b = b[n:]
		case reqDecimationRatio:
			v, n, err := consumeFixed32(b, typ)
			if err != nil {
				return nil, err
			}
			req.DecimationRatio = math.Float32frombits(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("stream request: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return req, nil
}

// MarshalFrameBundle encodes a FrameBundle for the wire or a vrlog chunk.
func MarshalFrameBundle(frame *view.FrameBundle) []byte {
	var b []byte
	if frame == nil {
		return b
	}
	if frame.FrameID != 0 {
		b = protowire.AppendTag(b, fbFrameID, protowire.VarintType)
		b = protowire.AppendVarint(b, frame.FrameID)
	}
	if frame.TimestampNanos != 0 {
		b = protowire.AppendTag(b, fbTimestampNs, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(frame.TimestampNanos))
	}
	if frame.SensorID != "" {
		b = protowire.AppendTag(b, fbSensorID, protowire.BytesType)
		b = protowire.AppendString(b, frame.SensorID)
	}
	if frame.FrameType != 0 {
		b = protowire.AppendTag(b, fbFrameType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(frame.FrameType)))
	}
	if frame.PointCloud != nil {
		b = protowire.AppendTag(b, fbPointCloud, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPointCloud(frame.PointCloud))
	}
	if frame.Background != nil {
		b = protowire.AppendTag(b, fbBackground, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalBackground(frame.Background))
	}
	if frame.BackgroundSeq != 0 {
		b = protowire.AppendTag(b, fbBackgroundSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, frame.BackgroundSeq)
	}
	return b
}

// UnmarshalFrameBundle decodes a FrameBundle.
func UnmarshalFrameBundle(b []byte) (*view.FrameBundle, error) {
	frame := &view.FrameBundle{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("frame bundle: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fbFrameID:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			frame.FrameID = v
			b = b[n:]
		case fbTimestampNs:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			frame.TimestampNanos = int64(v)
			b = b[n:]
		case fbSensorID:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			frame.SensorID = s
			b = b[n:]
		case fbFrameType:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			frame.FrameType = view.FrameType(int64(v))
			b = b[n:]
		case fbPointCloud:
			raw, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			pc, err := unmarshalPointCloud(raw)
			if err != nil {
				return nil, err
			}
			frame.PointCloud = pc
			b = b[n:]
		case fbBackground:
			raw, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			bg, err := unmarshalBackground(raw)
			if err != nil {
				return nil, err
			}
			frame.Background = bg
			b = b[n:]
		case fbBackgroundSeq:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			frame.BackgroundSeq = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("frame bundle: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return frame, nil
}

func marshalPointCloud(pc *view.PointCloudFrame) []byte {
	var b []byte
	if pc.FrameID != 0 {
		b = protowire.AppendTag(b, pcFrameID, protowire.VarintType)
		b = protowire.AppendVarint(b, pc.FrameID)
	}
	if pc.TimestampNanos != 0 {
		b = protowire.AppendTag(b, pcTimestampNs, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(pc.TimestampNanos))
	}
	if pc.SensorID != "" {
		b = protowire.AppendTag(b, pcSensorID, protowire.BytesType)
		b = protowire.AppendString(b, pc.SensorID)
	}
	b = appendPackedFloats(b, pcX, pc.X)
	b = appendPackedFloats(b, pcY, pc.Y)
	b = appendPackedFloats(b, pcZ, pc.Z)
	if len(pc.Intensity) > 0 {
		b = protowire.AppendTag(b, pcIntensity, protowire.BytesType)
		b = protowire.AppendBytes(b, pc.Intensity)
	}
	if len(pc.Classification) > 0 {
		b = protowire.AppendTag(b, pcClassification, protowire.BytesType)
		b = protowire.AppendBytes(b, pc.Classification)
	}
	if pc.PointCount != 0 {
		b = protowire.AppendTag(b, pcPointCount, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(pc.PointCount)))
	}
	return b
}

func unmarshalPointCloud(b []byte) (*view.PointCloudFrame, error) {
	pc := &view.PointCloudFrame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("point cloud: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case pcFrameID:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			pc.FrameID = v
			b = b[n:]
		case pcTimestampNs:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			pc.TimestampNanos = int64(v)
			b = b[n:]
		case pcSensorID:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			pc.SensorID = s
			b = b[n:]
		case pcX:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			pc.X = vals
			b = b[n:]
		case pcY:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			pc.Y = vals
			b = b[n:]
		case pcZ:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			pc.Z = vals
			b = b[n:]
		case pcIntensity:
			raw, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			pc.Intensity = append([]uint8(nil), raw...)
			b = b[n:]
		case pcClassification:
			raw, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			pc.Classification = append([]uint8(nil), raw...)
			b = b[n:]
		case pcPointCount:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			pc.PointCount = int(int64(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("point cloud: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return pc, nil
}

func marshalBackground(bg *view.BackgroundSnapshot) []byte {
	var b []byte
	if bg.SequenceNumber != 0 {
		b = protowire.AppendTag(b, bgSequenceNumber, protowire.VarintType)
		b = protowire.AppendVarint(b, bg.SequenceNumber)
	}
	if bg.TimestampNanos != 0 {
		b = protowire.AppendTag(b, bgTimestampNs, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(bg.TimestampNanos))
	}
	b = appendPackedFloats(b, bgX, bg.X)
	b = appendPackedFloats(b, bgY, bg.Y)
	b = appendPackedFloats(b, bgZ, bg.Z)
	if len(bg.Confidence) > 0 {
		var packed []byte
		for _, v := range bg.Confidence {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = protowire.AppendTag(b, bgConfidence, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if gm := marshalGridMetadata(&bg.GridMetadata); len(gm) > 0 {
		b = protowire.AppendTag(b, bgGrid, protowire.BytesType)
		b = protowire.AppendBytes(b, gm)
	}
	return b
}

func unmarshalBackground(b []byte) (*view.BackgroundSnapshot, error) {
	bg := &view.BackgroundSnapshot{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("background: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case bgSequenceNumber:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			bg.SequenceNumber = v
			b = b[n:]
		case bgTimestampNs:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			bg.TimestampNanos = int64(v)
			b = b[n:]
		case bgX:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			bg.X = vals
			b = b[n:]
		case bgY:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			bg.Y = vals
			b = b[n:]
		case bgZ:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			bg.Z = vals
			b = b[n:]
		case bgConfidence:
			raw, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			for len(raw) > 0 {
				v, vn := protowire.ConsumeVarint(raw)
				if vn < 0 {
					return nil, fmt.Errorf("background: bad confidence varint: %w", protowire.ParseError(vn))
				}
				bg.Confidence = append(bg.Confidence, uint32(v))
				raw = raw[vn:]
			}
			b = b[n:]
		case bgGrid:
			raw, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			gm, err := unmarshalGridMetadata(raw)
			if err != nil {
				return nil, err
			}
			bg.GridMetadata = *gm
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("background: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return bg, nil
}

func marshalGridMetadata(gm *view.GridMetadata) []byte {
	var b []byte
	if gm.Rings != 0 {
		b = protowire.AppendTag(b, gmRings, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(gm.Rings))
	}
	if gm.AzimuthBins != 0 {
		b = protowire.AppendTag(b, gmAzimuthBins, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(gm.AzimuthBins))
	}
	b = appendPackedFloats(b, gmRingElevations, gm.RingElevations)
	if gm.SettlingComplete {
		b = protowire.AppendTag(b, gmSettlingComplete, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func unmarshalGridMetadata(b []byte) (*view.GridMetadata, error) {
	gm := &view.GridMetadata{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("grid metadata: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case gmRings:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			gm.Rings = int(v)
			b = b[n:]
		case gmAzimuthBins:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			gm.AzimuthBins = int(v)
			b = b[n:]
		case gmRingElevations:
			vals, n, err := consumePackedFloats(b, typ)
			if err != nil {
				return nil, err
			}
			gm.RingElevations = vals
			b = b[n:]
		case gmSettlingComplete:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			gm.SettlingComplete = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("grid metadata: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return gm, nil
}

// appendPackedFloats appends a packed repeated-float field. Empty slices are
// omitted entirely, matching proto3 presence rules.
func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// consumePackedFloats reads a packed repeated-float field.
func consumePackedFloats(b []byte, typ protowire.Type) ([]float32, int, error) {
	raw, n, err := consumeBytes(b, typ)
	if err != nil {
		return nil, 0, err
	}
	if len(raw)%4 != 0 {
		return nil, 0, fmt.Errorf("packed floats: length %d not a multiple of 4", len(raw))
	}
	vals := make([]float32, 0, len(raw)/4)
	for len(raw) > 0 {
		v, vn := protowire.ConsumeFixed32(raw)
		if vn < 0 {
			return nil, 0, protowire.ParseError(vn)
		}
		vals = append(vals, math.Float32frombits(v))
		raw = raw[vn:]
	}
	return vals, n, nil
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d for varint field", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeFixed32(b []byte, typ protowire.Type) (uint32, int, error) {
	if typ != protowire.Fixed32Type {
		return 0, 0, fmt.Errorf("unexpected wire type %d for fixed32 field", typ)
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(b []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d for bytes field", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	v, n, err := consumeBytes(b, typ)
	if err != nil {
		return "", 0, err
	}
	return string(v), n, nil
}
