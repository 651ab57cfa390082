// Package stream connects the compositor to a live frame stream over gRPC,
// or to any other FrameSource (vrlog replay, synthetic generation).
//
// The gRPC layer runs pre-generation: messages are encoded by
// internal/view/wire against proto/lidarview.proto, and gRPC carries them as
// opaque byte payloads via a raw codec.
package stream

import (
	"fmt"
)

// rawMessage is an opaque gRPC payload; the wire package handles message
// encoding.
type rawMessage []byte

// rawCodec passes message bytes through gRPC untouched.
type rawCodec struct{}

// CodecName identifies the raw codec in the gRPC content subtype.
const CodecName = "lidarview-raw"

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
	return *m, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*m = append((*m)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return CodecName }
