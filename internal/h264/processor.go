// Package h264 splits Annex-B H.264 byte streams into NAL units and
// keeps the stream headers needed to join mid-stream.
package h264

import (
	"bytes"

	"github.com/citydrone/ground-station/pkg/types"
)

var (
	startCode3 = []byte{0x00, 0x00, 0x01}
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
)

// Processor caches SPS/PPS from the encoded stream so late joiners
// and mid-flight recordings start with a decodable IDR.
type Processor struct {
	spsCache   []byte
	ppsCache   []byte
	hasHeaders bool
}

func NewProcessor() *Processor {
	return &Processor{}
}

// Scan walks the frame's NAL units, caches parameter sets and marks
// IDR frames. Only SPS/PPS are copied; slice data is not retained.
func (p *Processor) Scan(frame *types.VideoFrame) {
	for _, nal := range SplitNALUnits(frame.Data) {
		switch nal.Type {
		case types.NALTypeSPS:
			p.spsCache = append([]byte(nil), nal.Data...)
		case types.NALTypePPS:
			p.ppsCache = append([]byte(nil), nal.Data...)
			if len(p.spsCache) > 0 {
				p.hasHeaders = true
			}
		case types.NALTypeIDR:
			frame.IsIDR = true
		}
	}
}

// PrependHeaders returns the data with cached SPS/PPS in front when it
// contains an IDR, otherwise the data unchanged.
func (p *Processor) PrependHeaders(data []byte) []byte {
	if !p.hasHeaders || !ContainsIDR(data) {
		return data
	}
	out := make([]byte, 0, len(p.spsCache)+len(p.ppsCache)+len(data))
	out = append(out, p.spsCache...)
	out = append(out, p.ppsCache...)
	return append(out, data...)
}

// HasHeaders reports whether SPS and PPS have both been seen.
func (p *Processor) HasHeaders() bool { return p.hasHeaders }

// SPS returns the cached SPS NAL (with start code).
func (p *Processor) SPS() []byte { return p.spsCache }

// PPS returns the cached PPS NAL (with start code).
func (p *Processor) PPS() []byte { return p.ppsCache }

// SplitNALUnits parses an Annex-B buffer into NAL units, each
// including its start code.
func SplitNALUnits(data []byte) []types.NALUnit {
	var units []types.NALUnit
	offset := 0
	for offset < len(data) {
		startLen := startCodeLenAt(data, offset)
		if startLen == 0 {
			offset++
			continue
		}
		headerAt := offset + startLen
		if headerAt >= len(data) {
			break
		}
		end := findStartCode(data, headerAt+1)
		if end == -1 {
			end = len(data)
		}
		nal := make([]byte, end-offset)
		copy(nal, data[offset:end])
		units = append(units, types.NALUnit{
			Type: data[headerAt] & 0x1F,
			Data: nal,
		})
		offset = end
	}
	return units
}

// NALType returns the type of the first NAL unit in data, or 0.
func NALType(data []byte) uint8 {
	if bytes.HasPrefix(data, startCode4) && len(data) > 4 {
		return data[4] & 0x1F
	}
	if bytes.HasPrefix(data, startCode3) && len(data) > 3 {
		return data[3] & 0x1F
	}
	return 0
}

// ContainsIDR reports whether any NAL unit in data is an IDR slice.
func ContainsIDR(data []byte) bool {
	offset := 0
	for offset < len(data) {
		startLen := startCodeLenAt(data, offset)
		if startLen == 0 {
			offset++
			continue
		}
		headerAt := offset + startLen
		if headerAt >= len(data) {
			return false
		}
		if data[headerAt]&0x1F == types.NALTypeIDR {
			return true
		}
		next := findStartCode(data, headerAt+1)
		if next == -1 {
			return false
		}
		offset = next
	}
	return false
}

func startCodeLenAt(data []byte, offset int) int {
	if offset+4 <= len(data) && data[offset] == 0 && data[offset+1] == 0 &&
		data[offset+2] == 0 && data[offset+3] == 1 {
		return 4
	}
	if offset+3 <= len(data) && data[offset] == 0 && data[offset+1] == 0 && data[offset+2] == 1 {
		return 3
	}
	return 0
}

func findStartCode(data []byte, offset int) int {
	for i := offset; i < len(data)-2; i++ {
		if data[i] == 0x00 && data[i+1] == 0x00 {
			if data[i+2] == 0x01 {
				return i
			}
			if i+3 < len(data) && data[i+2] == 0x00 && data[i+3] == 0x01 {
				return i
			}
		}
	}
	return -1
}
