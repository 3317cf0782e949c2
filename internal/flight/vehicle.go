// Package flight talks to the autopilot: vehicle state, manual
// control, mission planning and mission execution.
package flight

import (
	"math"
	"time"

	"github.com/citydrone/ground-station/internal/geo"
)

// Position is the vehicle location. Altitudes are meters, relative to
// home and above sea level respectively.
type Position struct {
	Lat    float64
	Lon    float64
	RelAlt float64
	Alt    float64
}

// RC override channel assignments.
const (
	ChanRoll     = 1
	ChanPitch    = 2
	ChanThrottle = 3
	ChanYaw      = 4
)

// PWM values for manual control. Overrides outside [PWMMin, PWMMax]
// are clamped before they reach the autopilot.
const (
	PWMMin    = 1000
	PWMMax    = 2000
	PWMCenter = 1500
	PWMLow    = 1300
	PWMHigh   = 1700
)

// Vehicle is the autopilot link. Implemented by SerialVehicle for the
// real aircraft and SimVehicle for bench work.
type Vehicle interface {
	// Mode returns the current flight mode name (GUIDED, LOITER, ...).
	Mode() string
	// SetMode requests a flight mode change.
	SetMode(mode string) error
	// Armed reports whether the motors are armed.
	Armed() bool
	// Position returns the last known location.
	Position() Position
	// Heading returns the compass heading in degrees, 0 when unknown.
	Heading() float64
	// Groundspeed returns the current groundspeed in m/s.
	Groundspeed() float64
	// Arm arms the motors.
	Arm() error
	// Takeoff climbs to alt meters. The vehicle must be armed.
	Takeoff(alt float64) error
	// LastHeartbeat is the receive time of the most recent autopilot
	// heartbeat, zero before the first one.
	LastHeartbeat() time.Time
	// Goto commands a guided move to lat/lon at relative altitude alt.
	Goto(lat, lon, alt float64) error
	// SetGroundspeed sets the guided-mode groundspeed in m/s.
	SetGroundspeed(speed float64) error
	// OverrideRC overrides one RC channel. pwm 0 releases the channel.
	OverrideRC(channel, pwm int) error
	// SetServo drives an auxiliary servo output to the given PWM.
	SetServo(servo, pwm int) error
	Close() error
}

// minMoveAlt keeps relative nudges from driving the target altitude
// into the ground.
const minMoveAlt = 1.0

// MoveRelative nudges the vehicle by forward/right/down meters in its
// own heading frame via a guided goto.
func MoveRelative(v Vehicle, forward, right, down float64) error {
	pos := v.Position()
	hdg := v.Heading() * math.Pi / 180

	north := forward*math.Cos(hdg) - right*math.Sin(hdg)
	east := forward*math.Sin(hdg) + right*math.Cos(hdg)

	dLatN, _ := geo.MetersToDegrees(north, pos.Lat)
	_, dLonE := geo.MetersToDegrees(east, pos.Lat)

	alt := math.Max(minMoveAlt, pos.RelAlt-down)
	return v.Goto(pos.Lat+dLatN, pos.Lon+dLonE, alt)
}
