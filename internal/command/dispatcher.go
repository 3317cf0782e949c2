package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/camera"
	"github.com/citydrone/ground-station/internal/flight"
	"github.com/citydrone/ground-station/internal/geo"
	"github.com/citydrone/ground-station/internal/led"
	"github.com/citydrone/ground-station/internal/logger"
	"github.com/citydrone/ground-station/internal/thermal"
)

const (
	clientHeartbeatGrace = 7 * time.Second
	defaultDataFPS       = 1.0
	takeoffAlt           = 2.0
)

// Config wires the dispatcher to the subsystems it commands. Vehicle,
// Cameras and LED may be nil when the hardware is absent; the related
// commands then answer with an error reply.
type Config struct {
	Pipeline   *thermal.Pipeline
	Cameras    *camera.Manager
	Recorder   *camera.Recorder
	Vehicle    flight.Vehicle
	Executor   *flight.Executor
	Gimbal     *flight.Gimbal
	LED        led.Controller
	CaptureDir string
	Send       func(string)
}

// Dispatcher executes operator commands and emits protocol replies.
type Dispatcher struct {
	cfg      Config
	settings *thermal.Settings

	hbMu    sync.Mutex
	lastHB  time.Time
	hbStale bool
}

// NewDispatcher builds a dispatcher over the given subsystems.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Send == nil {
		cfg.Send = func(string) {}
	}
	return &Dispatcher{cfg: cfg, settings: cfg.Pipeline.Settings()}
}

// HandleRaw parses and dispatches one protocol line.
func (d *Dispatcher) HandleRaw(raw string) {
	d.Dispatch(Parse(raw))
}

// Run watches the operator heartbeat and, when a vehicle is attached,
// pushes telemetry. Blocks until the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.cfg.Vehicle != nil {
		go flight.RunTelemetry(ctx, d.cfg.Vehicle, d.cfg.Send)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkClientHeartbeat()
		}
	}
}

// checkClientHeartbeat logs when the operator link goes quiet. Nothing
// is interrupted: losing the control channel must not crash a flight.
func (d *Dispatcher) checkClientHeartbeat() {
	d.hbMu.Lock()
	defer d.hbMu.Unlock()
	if d.lastHB.IsZero() {
		return
	}
	age := time.Since(d.lastHB)
	if age > clientHeartbeatGrace {
		if !d.hbStale {
			logger.Warn("Command", "no operator heartbeat for %.1fs", age.Seconds())
			d.hbStale = true
		}
	} else if d.hbStale {
		logger.Info("Command", "operator heartbeat recovered")
		d.hbStale = false
	}
}

func (d *Dispatcher) reply(format string, args ...interface{}) {
	d.cfg.Send(fmt.Sprintf(format, args...))
}

// Dispatch runs one parsed command. The switch is exhaustive over the
// command variants; anything unknown is logged and ignored.
func (d *Dispatcher) Dispatch(cmd Command) {
	switch c := cmd.(type) {
	case Heartbeat:
		d.hbMu.Lock()
		d.lastHB = time.Now()
		d.hbMu.Unlock()
		// Echoed so the operator side can measure link liveness too.
		d.reply("heartbeat")

	case SetColormap:
		d.settings.SetColormap(c.Index)
		d.reply("COLORMAP_STATUS:%s", thermal.ColormapName(d.settings.Snapshot().Colormap))
	case SetContrast:
		d.settings.SetContrast(c.Value)
		d.reply("CONTRAST_STATUS:%.1f", d.settings.Snapshot().Contrast)
	case SetBlur:
		d.settings.SetBlur(c.Radius)
		d.reply("BLUR_STATUS:%d", d.settings.Snapshot().Blur)
	case SetRotation:
		d.settings.SetRotation(c.Degrees)
		d.reply("ROTATE_STATUS:%d", d.settings.Snapshot().Rotation)
	case SetThreshold:
		d.settings.SetThresholdTemp(c.Temp)
		d.reply("THRESHOLD_STATUS:%.1f", d.settings.Snapshot().ThresholdTemp)
	case SetDetectRegions:
		d.settings.SetDetectRegions(c.Enabled)
		d.reply("THERMAL_DETECT_REGIONS_STATUS:%s", enabledDisabled(c.Enabled))
	case SetDetectionMode:
		if !d.settings.SetDetectionMode(thermal.DetectionMode(c.Mode)) {
			d.reply("THERMAL_ERROR:invalid detection mode %q", c.Mode)
			return
		}
		d.reply("THERMAL_DETECTION_MODE_STATUS:%s", c.Mode)
	case ToggleHUD:
		d.reply("THERMAL_HUD_STATUS:%s", onOff(d.settings.ToggleHUD()))

	case CaptureImages:
		d.capture()

	case VideoStart:
		fps := defaultDataFPS
		if c.HasFPS {
			fps = c.DataFPS
		}
		st, err := d.cfg.Recorder.Start(fps)
		if err != nil {
			d.reply("VIDEO_ERROR:%v", err)
			return
		}
		d.reply("VIDEO_STARTED:%s:%.1f", st.Stamp, st.DataFPS)
	case VideoStop:
		st, err := d.cfg.Recorder.Stop()
		if err != nil {
			d.reply("VIDEO_ERROR:%v", err)
			return
		}
		d.reply("VIDEO_STOPPED:%s:%d:%d:%d",
			st.Stamp, st.CameraFrames, st.ThermalFrames, st.DataFiles)

	case ManualPWM:
		if d.cfg.Vehicle == nil {
			d.reply("PWM_ERROR:no vehicle link")
			return
		}
		val := c.Value
		if val != 0 {
			val = geo.ClampInt(val, flight.PWMMin, flight.PWMMax)
		}
		if err := d.cfg.Vehicle.OverrideRC(c.Channel, val); err != nil {
			d.reply("PWM_ERROR:%v", err)
			return
		}
		d.reply("PWM_STATUS:%d:%d", c.Channel, val)
	case ManualMove:
		if d.cfg.Vehicle == nil {
			d.reply("PWM_ERROR:no vehicle link")
			return
		}
		if err := d.cfg.Vehicle.OverrideRC(c.Channel, c.PWM); err != nil {
			d.reply("PWM_ERROR:%v", err)
			return
		}
		d.reply("PWM_STATUS:%d:%d", c.Channel, c.PWM)
	case RelativeMove:
		if d.cfg.Vehicle == nil {
			d.reply("MOVE_ERROR:no vehicle link")
			return
		}
		if err := flight.MoveRelative(d.cfg.Vehicle, c.Forward, c.Right, c.Down); err != nil {
			d.reply("MOVE_ERROR:%v", err)
			return
		}
		d.reply("MOVE_STATUS:%.1f:%.1f:%.1f", c.Forward, c.Right, c.Down)
	case Arm:
		if d.cfg.Vehicle == nil {
			d.reply("ARM_ERROR:no vehicle link")
			return
		}
		if err := d.cfg.Vehicle.Arm(); err != nil {
			d.reply("ARM_ERROR:%v", err)
			return
		}
		d.reply("ARM_STATUS:armed")
	case Takeoff:
		if d.cfg.Vehicle == nil {
			d.reply("TAKEOFF_ERROR:no vehicle link")
			return
		}
		if err := d.cfg.Vehicle.Takeoff(takeoffAlt); err != nil {
			d.reply("TAKEOFF_ERROR:%v", err)
			return
		}
		d.reply("TAKEOFF_STARTED:%.1f", takeoffAlt)
	case SetFlightMode:
		if d.cfg.Vehicle == nil {
			d.reply("MODE_ERROR:no vehicle link")
			return
		}
		if err := d.cfg.Vehicle.SetMode(c.Mode); err != nil {
			d.reply("MODE_ERROR:%v", err)
			return
		}
		d.reply("MODE_STATUS:%s", c.Mode)

	case Goto:
		if d.cfg.Executor == nil {
			d.reply("GOTO_ERROR:no vehicle link")
			return
		}
		if err := d.cfg.Executor.StartGoto(c.Lat, c.Lon, c.Alt); err != nil {
			d.reply("GOTO_ERROR:%v", err)
			return
		}
		d.reply("GOTO_STARTED:%.7f:%.7f:%.1f", c.Lat, c.Lon, c.Alt)
	case StartSurveillance:
		if d.cfg.Executor == nil {
			d.reply("SURVEILLANCE_ERROR:no vehicle link")
			return
		}
		n, err := d.cfg.Executor.StartSurvey(c.Params)
		if err != nil {
			d.reply("SURVEILLANCE_ERROR:%v", err)
			return
		}
		d.reply("SURVEILLANCE_STARTED:%d", n)

	case CameraTiltUp:
		d.tilt(true)
	case CameraTiltDown:
		d.tilt(false)

	case LEDSetColor:
		if d.cfg.LED == nil {
			d.reply("LED_ERROR:led unavailable")
			return
		}
		r := geo.ClampInt(c.R, 0, 255)
		g := geo.ClampInt(c.G, 0, 255)
		b := geo.ClampInt(c.B, 0, 255)
		if err := d.cfg.LED.SetColor(uint8(r), uint8(g), uint8(b)); err != nil {
			d.reply("LED_ERROR:%v", err)
			return
		}
		d.reply("LED_STATUS:%d,%d,%d", r, g, b)
	case LEDOff:
		if d.cfg.LED == nil {
			d.reply("LED_ERROR:led unavailable")
			return
		}
		if err := d.cfg.LED.Off(); err != nil {
			d.reply("LED_ERROR:%v", err)
			return
		}
		d.reply("LED_STATUS:OFF")

	case Malformed:
		logger.Warn("Command", "malformed command %q: %s", c.Raw, c.Reason)
		d.reply("COMMAND_ERROR:%s", c.Reason)
	case Unknown:
		logger.Warn("Command", "unrecognized command %q", c.Raw)
	}
}

func (d *Dispatcher) tilt(up bool) {
	if d.cfg.Gimbal == nil {
		d.reply("TILT_ERROR:no vehicle link")
		return
	}
	var pwm int
	var err error
	if up {
		pwm, err = d.cfg.Gimbal.TiltUp()
	} else {
		pwm, err = d.cfg.Gimbal.TiltDown()
	}
	if err != nil {
		d.reply("TILT_ERROR:%v", err)
		return
	}
	d.reply("TILT_STATUS:%d", pwm)
}

// capture grabs the current thermal frame plus a camera still.
func (d *Dispatcher) capture() {
	frame := d.cfg.Pipeline.Latest()
	defer frame.Close()
	if frame.Err != "" {
		d.reply("CAPTURE_ERROR:Thermal camera not available")
		return
	}

	var camFrame *gocv.Mat
	if d.cfg.Cameras != nil {
		if img, ok := d.cfg.Cameras.Frame(); ok {
			defer img.Close()
			camFrame = &img
		}
	}

	res, err := thermal.CaptureImages(d.cfg.CaptureDir, frame, camFrame)
	if err != nil {
		d.reply("CAPTURE_ERROR:%v", err)
		return
	}
	d.reply("CAPTURE_SUCCESS:%s", res.Timestamp)
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func enabledDisabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
