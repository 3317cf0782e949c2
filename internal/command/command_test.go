package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydrone/ground-station/internal/flight"
)

func TestParseThermalCommands(t *testing.T) {
	assert.Equal(t, SetColormap{Index: 3}, Parse("THERMAL_COLORMAP:3"))
	assert.Equal(t, SetContrast{Value: 1.5}, Parse("THERMAL_CONTRAST:1.5"))
	assert.Equal(t, SetBlur{Radius: 2}, Parse("THERMAL_BLUR:2"))
	assert.Equal(t, SetRotation{Degrees: 90}, Parse("THERMAL_ROTATE:90"))
	assert.Equal(t, SetThreshold{Temp: 35.5}, Parse("THERMAL_THRESHOLD:35.5"))
	assert.Equal(t, SetDetectRegions{Enabled: true}, Parse("THERMAL_DETECT_REGIONS:ON"))
	assert.Equal(t, SetDetectRegions{Enabled: false}, Parse("THERMAL_DETECT_REGIONS:OFF"))
	assert.Equal(t, SetDetectionMode{Mode: "under"}, Parse("THERMAL_DETECTION_MODE:UNDER"))
	assert.Equal(t, ToggleHUD{}, Parse("THERMAL_TOGGLE_HUD"))
}

func TestParseHeartbeat(t *testing.T) {
	assert.Equal(t, Heartbeat{}, Parse("heartbeat"))
	assert.Equal(t, Heartbeat{}, Parse("HEARTBEAT"))
}

func TestParseVideo(t *testing.T) {
	assert.Equal(t, VideoStart{}, Parse("VIDEO_START"))
	assert.Equal(t, VideoStart{DataFPS: 2, HasFPS: true}, Parse("VIDEO_START:2"))
	assert.Equal(t, VideoStop{}, Parse("VIDEO_STOP"))

	m, ok := Parse("VIDEO_START:fast").(Malformed)
	require.True(t, ok)
	assert.Contains(t, m.Reason, "fps")
}

func TestParseManualMoves(t *testing.T) {
	assert.Equal(t, ManualMove{Channel: flight.ChanPitch, PWM: flight.PWMLow}, Parse("MANUAL_PITCH_FORWARD"))
	assert.Equal(t, ManualMove{Channel: flight.ChanPitch, PWM: flight.PWMCenter}, Parse("MANUAL_PITCH_FORWARD_STOP"))
	assert.Equal(t, ManualMove{Channel: flight.ChanPitch, PWM: flight.PWMCenter}, Parse("MANUAL_PITCH_STOP"))
	assert.Equal(t, ManualMove{Channel: flight.ChanYaw, PWM: flight.PWMHigh}, Parse("MANUAL_YAW_RIGHT"))
	assert.Equal(t, ManualMove{Channel: flight.ChanThrottle, PWM: flight.PWMHigh}, Parse("MANUAL_THROTTLE_UP"))
	assert.Equal(t, ManualMove{Channel: flight.ChanRoll, PWM: flight.PWMLow}, Parse("MANUAL_ROLL_LEFT"))
}

func TestParseManualPWM(t *testing.T) {
	assert.Equal(t, ManualPWM{Channel: 3, Value: 2500}, Parse("MANUAL_PWM:3:2500"))

	_, ok := Parse("MANUAL_PWM:3").(Malformed)
	assert.True(t, ok)
}

func TestParseGoto(t *testing.T) {
	assert.Equal(t, Goto{Lat: 45.5, Lon: -73.6, Alt: 50}, Parse("GOTO:45.5:-73.6:50"))

	_, ok := Parse("GOTO:45.5:-73.6").(Malformed)
	assert.True(t, ok)
}

func TestParseSurveillance(t *testing.T) {
	cmd := Parse("START_SURVEILLANCE:45.5,-73.6;45.501,-73.6;45.501,-73.599|5:50:longest:20:5")
	sv, ok := cmd.(StartSurveillance)
	require.True(t, ok)
	assert.Len(t, sv.Params.Points, 3)
	assert.Equal(t, 5.0, sv.Params.Speed)
	assert.Equal(t, 50.0, sv.Params.Alt)
	assert.Equal(t, flight.StyleLongest, sv.Params.Style)
	assert.Equal(t, 20.0, sv.Params.Spacing)
	assert.Equal(t, 5.0, sv.Params.Buffer)

	_, ok = Parse("START_SURVEILLANCE:45.5,-73.6|5:50").(Malformed)
	assert.True(t, ok)
}

func TestParseAutoCommands(t *testing.T) {
	assert.Equal(t, SetFlightMode{Mode: "RTL"}, Parse("AUTO_RETURN_TO_LAUNCH"))
	assert.Equal(t, SetFlightMode{Mode: "LAND"}, Parse("AUTO_LAND"))
	assert.Equal(t, Arm{}, Parse("AUTO_ARM"))
	assert.Equal(t, Takeoff{}, Parse("AUTO_TAKEOFF"))
	assert.Equal(t, RelativeMove{Forward: 2}, Parse("AUTO_FORWARD"))
	assert.Equal(t, RelativeMove{Right: -2}, Parse("AUTO_LEFT"))
	assert.Equal(t, RelativeMove{Down: -1}, Parse("AUTO_UP"))
}

func TestParseLED(t *testing.T) {
	assert.Equal(t, LEDSetColor{R: 255, G: 64, B: 0}, Parse("LED_SET_COLOR:255,64,0"))
	assert.Equal(t, LEDOff{}, Parse("LED_OFF"))

	_, ok := Parse("LED_SET_COLOR:red").(Malformed)
	assert.True(t, ok)
}

func TestParseUnknown(t *testing.T) {
	assert.Equal(t, Unknown{Raw: "FROBNICATE"}, Parse("FROBNICATE"))
	assert.Equal(t, Unknown{Raw: ""}, Parse(""))
}
