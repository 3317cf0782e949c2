package types

import "time"

// VideoFrame represents one encoded H.264 access unit with metadata,
// as produced by the encoder boundary and consumed by the transport
// and the raw-stream dumper.
type VideoFrame struct {
	Data      []byte    // Raw H.264 data (NAL units, Annex-B)
	Timestamp time.Time // Frame capture timestamp
	FrameNum  uint64    // Sequential frame number
	IsIDR     bool      // True if this frame contains an IDR
	Width     int       // Frame width
	Height    int       // Frame height
}

// NALUnit represents a single H.264 NAL unit
type NALUnit struct {
	Type uint8  // NAL unit type (lower 5 bits)
	Data []byte // Complete NAL unit including header
}

// NALUnitType constants
const (
	NALTypeSlice     uint8 = 1
	NALTypeIDR       uint8 = 5
	NALTypeSEI       uint8 = 6
	NALTypeSPS       uint8 = 7
	NALTypePPS       uint8 = 8
	NALTypeAUD       uint8 = 9
	NALTypeEndSeq    uint8 = 10
	NALTypeEndStream uint8 = 11
	NALTypeFiller    uint8 = 12
)
