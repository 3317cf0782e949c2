// Package command parses and dispatches the operator control protocol
// carried over the WebRTC data channel.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/citydrone/ground-station/internal/flight"
)

// Command is one parsed operator message. The concrete type carries
// the arguments; dispatching is an exhaustive type switch.
type Command interface {
	isCommand()
}

type Heartbeat struct{}

type SetColormap struct{ Index int }
type SetContrast struct{ Value float64 }
type SetBlur struct{ Radius int }
type SetRotation struct{ Degrees int }
type SetThreshold struct{ Temp float64 }
type SetDetectRegions struct{ Enabled bool }
type SetDetectionMode struct{ Mode string }
type ToggleHUD struct{}

type CaptureImages struct{}

type VideoStart struct {
	DataFPS float64
	HasFPS  bool
}
type VideoStop struct{}

type ManualPWM struct{ Channel, Value int }

// ManualMove is a press/release stick command (MANUAL_THROTTLE_UP,
// MANUAL_ROLL_LEFT, ...). The matching _STOP recenters the channel.
type ManualMove struct {
	Channel int
	PWM     int
}

// RelativeMove nudges the vehicle in its own heading frame
// (AUTO_FORWARD, AUTO_UP, ...). Distances in meters, NED signs.
type RelativeMove struct {
	Forward float64
	Right   float64
	Down    float64
}

type Arm struct{}
type Takeoff struct{}

type SetFlightMode struct{ Mode string }

type Goto struct{ Lat, Lon, Alt float64 }

type StartSurveillance struct{ Params flight.SurveyParams }

type CameraTiltUp struct{}
type CameraTiltDown struct{}

type LEDSetColor struct{ R, G, B int }
type LEDOff struct{}

// Malformed is a recognized command with bad arguments.
type Malformed struct {
	Raw    string
	Reason string
}

// Unknown is anything the protocol does not recognize.
type Unknown struct{ Raw string }

func (Heartbeat) isCommand()         {}
func (SetColormap) isCommand()       {}
func (SetContrast) isCommand()       {}
func (SetBlur) isCommand()           {}
func (SetRotation) isCommand()       {}
func (SetThreshold) isCommand()      {}
func (SetDetectRegions) isCommand()  {}
func (SetDetectionMode) isCommand()  {}
func (ToggleHUD) isCommand()         {}
func (CaptureImages) isCommand()     {}
func (VideoStart) isCommand()        {}
func (VideoStop) isCommand()         {}
func (ManualPWM) isCommand()         {}
func (ManualMove) isCommand()        {}
func (RelativeMove) isCommand()      {}
func (Arm) isCommand()               {}
func (Takeoff) isCommand()           {}
func (SetFlightMode) isCommand()     {}
func (Goto) isCommand()              {}
func (StartSurveillance) isCommand() {}
func (CameraTiltUp) isCommand()      {}
func (CameraTiltDown) isCommand()    {}
func (LEDSetColor) isCommand()       {}
func (LEDOff) isCommand()            {}
func (Malformed) isCommand()         {}
func (Unknown) isCommand()           {}

// manualMoves maps stick commands to their RC channel and active PWM.
var manualMoves = map[string]ManualMove{
	"MANUAL_THROTTLE_UP":    {Channel: flight.ChanThrottle, PWM: flight.PWMHigh},
	"MANUAL_THROTTLE_DOWN":  {Channel: flight.ChanThrottle, PWM: flight.PWMLow},
	"MANUAL_YAW_LEFT":       {Channel: flight.ChanYaw, PWM: flight.PWMLow},
	"MANUAL_YAW_RIGHT":      {Channel: flight.ChanYaw, PWM: flight.PWMHigh},
	"MANUAL_PITCH_FORWARD":  {Channel: flight.ChanPitch, PWM: flight.PWMLow},
	"MANUAL_PITCH_BACKWARD": {Channel: flight.ChanPitch, PWM: flight.PWMHigh},
	"MANUAL_ROLL_LEFT":      {Channel: flight.ChanRoll, PWM: flight.PWMLow},
	"MANUAL_ROLL_RIGHT":     {Channel: flight.ChanRoll, PWM: flight.PWMHigh},
}

// manualStopChannels resolves a _STOP by axis group, so both
// MANUAL_YAW_LEFT_STOP and MANUAL_YAW_STOP recenter the yaw channel.
var manualStopChannels = map[string]int{
	"MANUAL_THROTTLE": flight.ChanThrottle,
	"MANUAL_YAW":      flight.ChanYaw,
	"MANUAL_PITCH":    flight.ChanPitch,
	"MANUAL_ROLL":     flight.ChanRoll,
}

// autoModes maps AUTO_ commands to flight modes.
var autoModes = map[string]string{
	"AUTO_LAND":             "LAND",
	"AUTO_RETURN_TO_LAUNCH": "RTL",
}

// Nudge distances for the AUTO_ directional commands.
const (
	nudgeDistance = 2.0
	nudgeClimb    = 1.0
)

// autoMoves maps AUTO_ directional commands to heading-frame offsets.
var autoMoves = map[string]RelativeMove{
	"AUTO_FORWARD":  {Forward: nudgeDistance},
	"AUTO_BACKWARD": {Forward: -nudgeDistance},
	"AUTO_LEFT":     {Right: -nudgeDistance},
	"AUTO_RIGHT":    {Right: nudgeDistance},
	"AUTO_UP":       {Down: -nudgeClimb},
	"AUTO_DOWN":     {Down: nudgeClimb},
}

// Parse turns one raw protocol line into a Command.
func Parse(raw string) Command {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return Unknown{Raw: raw}
	}
	if strings.EqualFold(msg, "heartbeat") {
		return Heartbeat{}
	}

	name, args, hasArgs := strings.Cut(msg, ":")

	if !hasArgs {
		if mv, ok := manualMoves[name]; ok {
			return mv
		}
		if strings.HasSuffix(name, "_STOP") {
			action := strings.TrimSuffix(name, "_STOP")
			for group, ch := range manualStopChannels {
				if strings.HasPrefix(action, group) {
					return ManualMove{Channel: ch, PWM: flight.PWMCenter}
				}
			}
		}
		if mode, ok := autoModes[name]; ok {
			return SetFlightMode{Mode: mode}
		}
		if mv, ok := autoMoves[name]; ok {
			return mv
		}
		switch name {
		case "AUTO_ARM":
			return Arm{}
		case "AUTO_TAKEOFF":
			return Takeoff{}
		}
	}

	switch name {
	case "THERMAL_COLORMAP":
		v, err := strconv.Atoi(args)
		if err != nil {
			return Malformed{Raw: raw, Reason: "colormap index must be an integer"}
		}
		return SetColormap{Index: v}
	case "THERMAL_CONTRAST":
		v, err := strconv.ParseFloat(args, 64)
		if err != nil {
			return Malformed{Raw: raw, Reason: "contrast must be a number"}
		}
		return SetContrast{Value: v}
	case "THERMAL_BLUR":
		v, err := strconv.Atoi(args)
		if err != nil {
			return Malformed{Raw: raw, Reason: "blur radius must be an integer"}
		}
		return SetBlur{Radius: v}
	case "THERMAL_ROTATE":
		v, err := strconv.Atoi(args)
		if err != nil {
			return Malformed{Raw: raw, Reason: "rotation must be an integer"}
		}
		return SetRotation{Degrees: v}
	case "THERMAL_THRESHOLD":
		v, err := strconv.ParseFloat(args, 64)
		if err != nil {
			return Malformed{Raw: raw, Reason: "threshold must be a number"}
		}
		return SetThreshold{Temp: v}
	case "THERMAL_DETECT_REGIONS":
		switch strings.ToUpper(args) {
		case "ON", "TRUE", "1":
			return SetDetectRegions{Enabled: true}
		case "OFF", "FALSE", "0":
			return SetDetectRegions{Enabled: false}
		}
		return Malformed{Raw: raw, Reason: "detect regions wants ON or OFF"}
	case "THERMAL_DETECTION_MODE":
		return SetDetectionMode{Mode: strings.ToLower(args)}
	case "THERMAL_TOGGLE_HUD":
		return ToggleHUD{}
	case "CAPTURE_IMAGES":
		return CaptureImages{}
	case "VIDEO_START":
		if !hasArgs || args == "" {
			return VideoStart{}
		}
		fps, err := strconv.ParseFloat(args, 64)
		if err != nil {
			return Malformed{Raw: raw, Reason: "data fps must be a number"}
		}
		return VideoStart{DataFPS: fps, HasFPS: true}
	case "VIDEO_STOP":
		return VideoStop{}
	case "MANUAL_PWM":
		parts := strings.Split(args, ":")
		if len(parts) != 2 {
			return Malformed{Raw: raw, Reason: "want MANUAL_PWM:channel:value"}
		}
		ch, err1 := strconv.Atoi(parts[0])
		val, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return Malformed{Raw: raw, Reason: "channel and value must be integers"}
		}
		return ManualPWM{Channel: ch, Value: val}
	case "GOTO":
		parts := strings.Split(args, ":")
		if len(parts) != 3 {
			return Malformed{Raw: raw, Reason: "want GOTO:lat:lon:alt"}
		}
		lat, err1 := strconv.ParseFloat(parts[0], 64)
		lon, err2 := strconv.ParseFloat(parts[1], 64)
		alt, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return Malformed{Raw: raw, Reason: "lat, lon and alt must be numbers"}
		}
		return Goto{Lat: lat, Lon: lon, Alt: alt}
	case "START_SURVEILLANCE":
		params, err := parseSurveillance(args)
		if err != nil {
			return Malformed{Raw: raw, Reason: err.Error()}
		}
		return StartSurveillance{Params: params}
	case "CAMERA_TILT_UP":
		return CameraTiltUp{}
	case "CAMERA_TILT_DOWN":
		return CameraTiltDown{}
	case "LED_SET_COLOR":
		parts := strings.Split(args, ",")
		if len(parts) != 3 {
			return Malformed{Raw: raw, Reason: "want LED_SET_COLOR:r,g,b"}
		}
		r, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		g, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		b, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			return Malformed{Raw: raw, Reason: "r, g and b must be integers"}
		}
		return LEDSetColor{R: r, G: g, B: b}
	case "LED_OFF":
		return LEDOff{}
	}
	return Unknown{Raw: raw}
}

// parseSurveillance decodes
// "lat,lon;lat,lon;...|speed:alt:style:spacing:buffer".
func parseSurveillance(args string) (flight.SurveyParams, error) {
	var p flight.SurveyParams

	pointsPart, paramPart, ok := strings.Cut(args, "|")
	if !ok {
		return p, fmt.Errorf("want points|speed:alt:style:spacing:buffer")
	}

	for _, ptStr := range strings.Split(pointsPart, ";") {
		ptStr = strings.TrimSpace(ptStr)
		if ptStr == "" {
			continue
		}
		latStr, lonStr, ok := strings.Cut(ptStr, ",")
		if !ok {
			return p, fmt.Errorf("bad point %q", ptStr)
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err1 != nil || err2 != nil {
			return p, fmt.Errorf("bad point %q", ptStr)
		}
		p.Points = append(p.Points, flight.LatLon{Lat: lat, Lon: lon})
	}

	parts := strings.Split(paramPart, ":")
	if len(parts) != 5 {
		return p, fmt.Errorf("want speed:alt:style:spacing:buffer")
	}
	var err error
	if p.Speed, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return p, fmt.Errorf("bad speed %q", parts[0])
	}
	if p.Alt, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return p, fmt.Errorf("bad altitude %q", parts[1])
	}
	p.Style = strings.ToLower(parts[2])
	if p.Spacing, err = strconv.ParseFloat(parts[3], 64); err != nil {
		return p, fmt.Errorf("bad spacing %q", parts[3])
	}
	if p.Buffer, err = strconv.ParseFloat(parts[4], 64); err != nil {
		return p, fmt.Errorf("bad buffer %q", parts[4])
	}
	return p, nil
}
