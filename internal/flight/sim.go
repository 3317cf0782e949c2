package flight

import (
	"errors"
	"sync"
	"time"

	"github.com/citydrone/ground-station/internal/geo"
	"github.com/citydrone/ground-station/internal/logger"
)

// SimVehicle is an in-process autopilot stand-in for bench testing
// without an airframe. Guided moves teleport to the target.
type SimVehicle struct {
	mu sync.Mutex

	mode        string
	armed       bool
	pos         Position
	heading     float64
	lastHB      time.Time
	groundspeed float64

	// HoldPosition freezes the vehicle so waypoint timeouts and
	// aborts can be exercised.
	HoldPosition bool

	RC     map[int]int
	Servos map[int]int
}

// NewSimVehicle creates a simulator parked at the given location.
func NewSimVehicle(lat, lon float64) *SimVehicle {
	return &SimVehicle{
		mode:   "STABILIZE",
		pos:    Position{Lat: lat, Lon: lon},
		lastHB: time.Now(),
		RC:     make(map[int]int),
		Servos: make(map[int]int),
	}
}

func (v *SimVehicle) Mode() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *SimVehicle) SetMode(mode string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = mode
	logger.Debug("SimVehicle", "mode -> %s", mode)
	return nil
}

func (v *SimVehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

// SetArmed flips the simulated arm state.
func (v *SimVehicle) SetArmed(armed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = armed
}

func (v *SimVehicle) Position() Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

// SetPosition places the vehicle somewhere directly.
func (v *SimVehicle) SetPosition(p Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = p
}

func (v *SimVehicle) Heading() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.heading
}

// SetHeading points the simulated vehicle in the given direction.
func (v *SimVehicle) SetHeading(deg float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.heading = deg
}

func (v *SimVehicle) Arm() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = true
	logger.Debug("SimVehicle", "armed")
	return nil
}

func (v *SimVehicle) Takeoff(alt float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		return errors.New("cannot take off while disarmed")
	}
	v.mode = "GUIDED"
	v.pos.Alt += alt - v.pos.RelAlt
	v.pos.RelAlt = alt
	return nil
}

func (v *SimVehicle) LastHeartbeat() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastHB
}

func (v *SimVehicle) Goto(lat, lon, alt float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.HoldPosition {
		v.pos = Position{Lat: lat, Lon: lon, RelAlt: alt, Alt: v.pos.Alt - v.pos.RelAlt + alt}
	}
	return nil
}

func (v *SimVehicle) SetGroundspeed(speed float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.groundspeed = speed
	return nil
}

// Groundspeed reports the last commanded groundspeed.
func (v *SimVehicle) Groundspeed() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.groundspeed
}

func (v *SimVehicle) OverrideRC(channel, pwm int) error {
	if pwm != 0 {
		pwm = geo.ClampInt(pwm, PWMMin, PWMMax)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.RC[channel] = pwm
	return nil
}

func (v *SimVehicle) SetServo(servo, pwm int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Servos[servo] = pwm
	return nil
}

func (v *SimVehicle) Close() error { return nil }
