package flight

import (
	"encoding/binary"
	"fmt"
	"math"
)

func floatBits(v float32) uint32 { return math.Float32bits(v) }

// Minimal MAVLink 1 framing for the handful of messages the ground
// station exchanges with an ArduCopter autopilot.

const mavStx = 0xFE

// Message ids.
const (
	msgHeartbeat            = 0
	msgSetMode              = 11
	msgGlobalPositionInt    = 33
	msgRequestDataStream    = 66
	msgRCChannelsOverride   = 70
	msgVFRHUD               = 74
	msgCommandLong          = 76
	msgSetPositionTargetGbl = 86
)

// MAV_CMD ids used in COMMAND_LONG.
const (
	cmdNavTakeoff         = 22
	cmdDoChangeSpeed      = 178
	cmdDoSetServo         = 183
	cmdComponentArmDisarm = 400
)

const (
	mavFlagCustomModeEnabled = 1
	mavFlagSafetyArmed       = 128

	// MAV_FRAME_GLOBAL_RELATIVE_ALT_INT
	frameGlobalRelAltInt = 6

	// POSITION_TARGET_TYPEMASK: position only, ignore velocity,
	// acceleration and yaw.
	typeMaskPositionOnly = 0x0DF8
)

// crcExtras holds the per-message seed byte appended before the final
// CRC. A message id missing here cannot be validated.
var crcExtras = map[uint8]uint8{
	msgHeartbeat:            50,
	msgSetMode:              89,
	msgGlobalPositionInt:    104,
	msgRequestDataStream:    148,
	msgRCChannelsOverride:   124,
	msgVFRHUD:               20,
	msgCommandLong:          152,
	msgSetPositionTargetGbl: 5,
}

// copterModes maps ArduCopter custom_mode values to names.
var copterModes = map[uint32]string{
	0:  "STABILIZE",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	9:  "LAND",
	16: "POSHOLD",
	17: "BRAKE",
}

var copterModeIDs = func() map[string]uint32 {
	m := make(map[string]uint32, len(copterModes))
	for id, name := range copterModes {
		m[name] = id
	}
	return m
}()

// x25Accumulate folds one byte into the MCRF4XX checksum.
func x25Accumulate(b byte, crc uint16) uint16 {
	tmp := b ^ byte(crc&0xFF)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

func x25(data []byte, extra uint8) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = x25Accumulate(b, crc)
	}
	return x25Accumulate(extra, crc)
}

// mavFrame is one decoded MAVLink frame.
type mavFrame struct {
	sysID   uint8
	compID  uint8
	msgID   uint8
	payload []byte
}

// encodeFrame wraps a payload into a MAVLink 1 frame.
func encodeFrame(seq, sysID, compID, msgID uint8, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload))
	out = append(out, mavStx, uint8(len(payload)), seq, sysID, compID, msgID)
	out = append(out, payload...)
	crc := x25(out[1:], crcExtras[msgID])
	return append(out, byte(crc&0xFF), byte(crc>>8))
}

// mavParser is an incremental frame parser over a raw byte stream.
type mavParser struct {
	buf []byte
}

func (p *mavParser) push(data []byte) []mavFrame {
	p.buf = append(p.buf, data...)
	var frames []mavFrame
	for {
		// Resync to the next start marker.
		for len(p.buf) > 0 && p.buf[0] != mavStx {
			p.buf = p.buf[1:]
		}
		if len(p.buf) < 8 {
			return frames
		}
		total := 8 + int(p.buf[1])
		if len(p.buf) < total {
			return frames
		}
		raw := p.buf[:total]
		msgID := raw[5]
		extra, known := crcExtras[msgID]
		if known {
			want := uint16(raw[total-2]) | uint16(raw[total-1])<<8
			if x25(raw[1:total-2], extra) == want {
				payload := make([]byte, int(raw[1]))
				copy(payload, raw[6:total-2])
				frames = append(frames, mavFrame{
					sysID:   raw[3],
					compID:  raw[4],
					msgID:   msgID,
					payload: payload,
				})
				p.buf = p.buf[total:]
				continue
			}
			// Bad checksum, resync past the marker.
			p.buf = p.buf[1:]
			continue
		}
		// Unknown message, no crc extra to validate with. Resync
		// byte by byte rather than trust the declared length.
		p.buf = p.buf[1:]
	}
}

// heartbeatState is the decoded HEARTBEAT content we care about.
type heartbeatState struct {
	mode  string
	armed bool
}

func decodeHeartbeat(payload []byte) (heartbeatState, error) {
	if len(payload) < 9 {
		return heartbeatState{}, fmt.Errorf("heartbeat payload too short: %d", len(payload))
	}
	customMode := binary.LittleEndian.Uint32(payload[0:4])
	baseMode := payload[6]

	st := heartbeatState{armed: baseMode&mavFlagSafetyArmed != 0}
	if name, ok := copterModes[customMode]; ok {
		st.mode = name
	} else {
		st.mode = fmt.Sprintf("MODE_%d", customMode)
	}
	return st, nil
}

func decodeGlobalPosition(payload []byte) (Position, error) {
	if len(payload) < 28 {
		return Position{}, fmt.Errorf("global_position_int payload too short: %d", len(payload))
	}
	return Position{
		Lat:    float64(int32(binary.LittleEndian.Uint32(payload[4:8]))) / 1e7,
		Lon:    float64(int32(binary.LittleEndian.Uint32(payload[8:12]))) / 1e7,
		Alt:    float64(int32(binary.LittleEndian.Uint32(payload[12:16]))) / 1000,
		RelAlt: float64(int32(binary.LittleEndian.Uint32(payload[16:20]))) / 1000,
	}, nil
}

// decodeHeading pulls the compass heading (degrees) out of a
// GLOBAL_POSITION_INT payload. The autopilot sends 0xFFFF when the
// heading is unknown.
func decodeHeading(payload []byte) (float64, bool) {
	if len(payload) < 28 {
		return 0, false
	}
	raw := binary.LittleEndian.Uint16(payload[26:28])
	if raw == 0xFFFF {
		return 0, false
	}
	return float64(raw) / 100, true
}

// vfrHUD is the pilot-display summary. Only groundspeed and heading
// are consumed; the heading backs up GLOBAL_POSITION_INT on airframes
// that report 0xFFFF there.
type vfrHUD struct {
	groundspeed float64
	heading     float64
}

func decodeVFRHUD(payload []byte) (vfrHUD, error) {
	if len(payload) < 20 {
		return vfrHUD{}, fmt.Errorf("vfr_hud payload too short: %d", len(payload))
	}
	return vfrHUD{
		groundspeed: float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[4:8]))),
		heading:     float64(int16(binary.LittleEndian.Uint16(payload[16:18]))),
	}, nil
}

func encodeHeartbeatGCS() []byte {
	// MAV_TYPE_GCS=6, MAV_AUTOPILOT_INVALID=8, MAV_STATE_ACTIVE=4.
	p := make([]byte, 9)
	p[4] = 6
	p[5] = 8
	p[7] = 4
	p[8] = 3
	return p
}

func encodeSetMode(targetSys uint8, customMode uint32) []byte {
	p := make([]byte, 6)
	binary.LittleEndian.PutUint32(p[0:4], customMode)
	p[4] = targetSys
	p[5] = mavFlagCustomModeEnabled
	return p
}

func encodeRequestDataStream(targetSys, targetComp uint8, rateHz uint16) []byte {
	p := make([]byte, 6)
	binary.LittleEndian.PutUint16(p[0:2], rateHz)
	p[2] = targetSys
	p[3] = targetComp
	p[4] = 0 // MAV_DATA_STREAM_ALL
	p[5] = 1
	return p
}

func encodeRCOverride(targetSys, targetComp uint8, channels [8]uint16) []byte {
	p := make([]byte, 18)
	for i, v := range channels {
		binary.LittleEndian.PutUint16(p[i*2:], v)
	}
	p[16] = targetSys
	p[17] = targetComp
	return p
}

func encodeCommandLong(targetSys, targetComp uint8, command uint16, params [7]float32) []byte {
	p := make([]byte, 33)
	for i, v := range params {
		binary.LittleEndian.PutUint32(p[i*4:], floatBits(v))
	}
	binary.LittleEndian.PutUint16(p[28:30], command)
	p[30] = targetSys
	p[31] = targetComp
	p[32] = 0
	return p
}

func encodeSetPositionTarget(targetSys, targetComp uint8, lat, lon, alt float64) []byte {
	p := make([]byte, 53)
	binary.LittleEndian.PutUint32(p[4:8], uint32(int32(lat*1e7)))
	binary.LittleEndian.PutUint32(p[8:12], uint32(int32(lon*1e7)))
	binary.LittleEndian.PutUint32(p[12:16], floatBits(float32(alt)))
	binary.LittleEndian.PutUint16(p[48:50], typeMaskPositionOnly)
	p[50] = targetSys
	p[51] = targetComp
	p[52] = frameGlobalRelAltInt
	return p
}
