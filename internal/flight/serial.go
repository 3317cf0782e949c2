package flight

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/citydrone/ground-station/internal/geo"
	"github.com/citydrone/ground-station/internal/logger"
)

const (
	gcsSystemID    = 255
	gcsComponentID = 190

	streamRateHz      = 4
	heartbeatInterval = 1 * time.Second
	serialReadTimeout = 250 * time.Millisecond
)

// SerialVehicle is the MAVLink autopilot link over a serial port.
type SerialVehicle struct {
	port serial.Port

	writeMu sync.Mutex
	seq     uint8

	mu          sync.Mutex
	mode        string
	armed       bool
	pos         Position
	heading     float64
	posHeading  bool
	groundspeed float64
	lastHB      time.Time
	targetSys   uint8
	targetComp  uint8
	streamsReq  bool
	channels    [8]uint16

	done chan struct{}
	wg   sync.WaitGroup
}

// DialSerial opens the autopilot link and starts the reader and
// heartbeat workers.
func DialSerial(portName string, baud int) (*SerialVehicle, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open autopilot port %s: %w", portName, err)
	}
	port.SetReadTimeout(serialReadTimeout)

	v := &SerialVehicle{
		port:       port,
		targetSys:  1,
		targetComp: 1,
		done:       make(chan struct{}),
	}
	v.wg.Add(2)
	go v.readLoop()
	go v.heartbeatLoop()
	logger.Info("Flight", "autopilot link open on %s @ %d", portName, baud)
	return v, nil
}

func (v *SerialVehicle) send(msgID uint8, payload []byte) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	frame := encodeFrame(v.seq, gcsSystemID, gcsComponentID, msgID, payload)
	v.seq++
	if _, err := v.port.Write(frame); err != nil {
		return fmt.Errorf("write msg %d: %w", msgID, err)
	}
	return nil
}

func (v *SerialVehicle) readLoop() {
	defer v.wg.Done()
	var parser mavParser
	buf := make([]byte, 1024)
	for {
		select {
		case <-v.done:
			return
		default:
		}
		n, err := v.port.Read(buf)
		if err != nil {
			select {
			case <-v.done:
			default:
				logger.Warn("Flight", "serial read: %v", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		for _, f := range parser.push(buf[:n]) {
			v.handleFrame(f)
		}
	}
}

func (v *SerialVehicle) handleFrame(f mavFrame) {
	switch f.msgID {
	case msgHeartbeat:
		// Only the autopilot component, not companion peripherals.
		if f.compID != 1 {
			return
		}
		hb, err := decodeHeartbeat(f.payload)
		if err != nil {
			return
		}
		v.mu.Lock()
		v.mode = hb.mode
		v.armed = hb.armed
		v.lastHB = time.Now()
		v.targetSys = f.sysID
		first := !v.streamsReq
		v.streamsReq = true
		v.mu.Unlock()

		if first {
			logger.Info("Flight", "autopilot heartbeat from sys %d (%s)", f.sysID, hb.mode)
			v.send(msgRequestDataStream,
				encodeRequestDataStream(f.sysID, 1, streamRateHz))
		}
	case msgGlobalPositionInt:
		pos, err := decodeGlobalPosition(f.payload)
		if err != nil {
			return
		}
		v.mu.Lock()
		v.pos = pos
		if hdg, ok := decodeHeading(f.payload); ok {
			v.heading = hdg
			v.posHeading = true
		}
		v.mu.Unlock()
	case msgVFRHUD:
		hud, err := decodeVFRHUD(f.payload)
		if err != nil {
			return
		}
		v.mu.Lock()
		v.groundspeed = hud.groundspeed
		// GLOBAL_POSITION_INT heading wins when the autopilot sends one.
		if !v.posHeading {
			v.heading = hud.heading
		}
		v.mu.Unlock()
	}
}

func (v *SerialVehicle) heartbeatLoop() {
	defer v.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			v.send(msgHeartbeat, encodeHeartbeatGCS())
		}
	}
}

func (v *SerialVehicle) Mode() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *SerialVehicle) SetMode(mode string) error {
	id, ok := copterModeIDs[mode]
	if !ok {
		return fmt.Errorf("unknown flight mode %q", mode)
	}
	v.mu.Lock()
	sys := v.targetSys
	v.mu.Unlock()
	return v.send(msgSetMode, encodeSetMode(sys, id))
}

func (v *SerialVehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

func (v *SerialVehicle) Position() Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

func (v *SerialVehicle) Heading() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.heading
}

func (v *SerialVehicle) Groundspeed() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.groundspeed
}

func (v *SerialVehicle) Arm() error {
	v.mu.Lock()
	sys, comp := v.targetSys, v.targetComp
	v.mu.Unlock()
	return v.send(msgCommandLong, encodeCommandLong(sys, comp, cmdComponentArmDisarm,
		[7]float32{1, 0, 0, 0, 0, 0, 0}))
}

func (v *SerialVehicle) Takeoff(alt float64) error {
	if !v.Armed() {
		return fmt.Errorf("cannot take off while disarmed")
	}
	if err := v.SetMode("GUIDED"); err != nil {
		return err
	}
	v.mu.Lock()
	sys, comp := v.targetSys, v.targetComp
	v.mu.Unlock()
	// Altitude rides in param7.
	return v.send(msgCommandLong, encodeCommandLong(sys, comp, cmdNavTakeoff,
		[7]float32{0, 0, 0, 0, 0, 0, float32(alt)}))
}

func (v *SerialVehicle) LastHeartbeat() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastHB
}

func (v *SerialVehicle) Goto(lat, lon, alt float64) error {
	v.mu.Lock()
	sys, comp := v.targetSys, v.targetComp
	v.mu.Unlock()
	return v.send(msgSetPositionTargetGbl, encodeSetPositionTarget(sys, comp, lat, lon, alt))
}

func (v *SerialVehicle) SetGroundspeed(speed float64) error {
	v.mu.Lock()
	sys, comp := v.targetSys, v.targetComp
	v.mu.Unlock()
	// param1: speed type 1 = groundspeed, param3 -1 keeps throttle.
	return v.send(msgCommandLong, encodeCommandLong(sys, comp, cmdDoChangeSpeed,
		[7]float32{1, float32(speed), -1, 0, 0, 0, 0}))
}

func (v *SerialVehicle) OverrideRC(channel, pwm int) error {
	if channel < 1 || channel > 8 {
		return fmt.Errorf("rc channel %d out of range", channel)
	}
	if pwm != 0 {
		pwm = geo.ClampInt(pwm, PWMMin, PWMMax)
	}
	v.mu.Lock()
	v.channels[channel-1] = uint16(pwm)
	channels := v.channels
	sys, comp := v.targetSys, v.targetComp
	v.mu.Unlock()
	return v.send(msgRCChannelsOverride, encodeRCOverride(sys, comp, channels))
}

func (v *SerialVehicle) SetServo(servo, pwm int) error {
	v.mu.Lock()
	sys, comp := v.targetSys, v.targetComp
	v.mu.Unlock()
	return v.send(msgCommandLong, encodeCommandLong(sys, comp, cmdDoSetServo,
		[7]float32{float32(servo), float32(pwm), 0, 0, 0, 0, 0}))
}

func (v *SerialVehicle) Close() error {
	close(v.done)
	err := v.port.Close()
	v.wg.Wait()
	return err
}
