package flight

import (
	"sync"

	"github.com/citydrone/ground-station/internal/geo"
)

// Camera tilt servo limits. The mount binds mechanically outside this
// range.
const (
	ServoCameraTilt = 9
	TiltMin         = 600
	TiltMax         = 1650
	TiltStep        = 50
	TiltCenter      = (TiltMin + TiltMax) / 2
)

// Gimbal tracks the camera tilt servo position.
type Gimbal struct {
	mu  sync.Mutex
	v   Vehicle
	pwm int
}

// NewGimbal starts at the centered tilt position.
func NewGimbal(v Vehicle) *Gimbal {
	return &Gimbal{v: v, pwm: TiltCenter}
}

// PWM returns the current tilt value.
func (g *Gimbal) PWM() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pwm
}

// TiltUp steps the camera up and returns the new PWM.
func (g *Gimbal) TiltUp() (int, error) {
	return g.step(TiltStep)
}

// TiltDown steps the camera down and returns the new PWM.
func (g *Gimbal) TiltDown() (int, error) {
	return g.step(-TiltStep)
}

func (g *Gimbal) step(delta int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := geo.ClampInt(g.pwm+delta, TiltMin, TiltMax)
	if err := g.v.SetServo(ServoCameraTilt, next); err != nil {
		return g.pwm, err
	}
	g.pwm = next
	return g.pwm, nil
}
