package flight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastExecutor(v Vehicle) *Executor {
	e := NewExecutor(v)
	e.GuidedWait = 200 * time.Millisecond
	e.WaypointTimeout = 500 * time.Millisecond
	e.PollInterval = 10 * time.Millisecond
	e.Accuracy = 5
	return e
}

func waitStopped(t *testing.T, e *Executor) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for e.Running() {
		if time.Now().After(deadline) {
			t.Fatal("mission still running")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExecutorFliesSurvey(t *testing.T) {
	sim := NewSimVehicle(45.5005, -73.5995)
	sim.SetArmed(true)
	e := fastExecutor(sim)

	n, err := e.StartSurvey(validParams())
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.True(t, e.Running())

	waitStopped(t, e)
	assert.Equal(t, "GUIDED", sim.Mode())

	sim.mu.Lock()
	speed := sim.groundspeed
	sim.mu.Unlock()
	assert.Equal(t, 5.0, speed)
}

func TestExecutorRejectsInvalidSpeed(t *testing.T) {
	e := fastExecutor(NewSimVehicle(0, 0))
	p := validParams()
	p.Speed = 0.5
	_, err := e.StartSurvey(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid speed")
	assert.False(t, e.Running())
}

func TestExecutorSingleMissionAtATime(t *testing.T) {
	sim := NewSimVehicle(45.5, -73.6)
	sim.HoldPosition = true
	e := fastExecutor(sim)

	require.NoError(t, e.StartGoto(45.6, -73.7, 50))
	_, err := e.StartSurvey(validParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	e.Abort()
	waitStopped(t, e)
}

func TestExecutorAbortsOnModeChange(t *testing.T) {
	sim := NewSimVehicle(45.5, -73.6)
	sim.HoldPosition = true
	e := fastExecutor(sim)

	require.NoError(t, e.StartGoto(45.6, -73.7, 50))
	time.Sleep(50 * time.Millisecond)

	// Pilot takes over on the transmitter.
	sim.SetMode("LOITER")
	waitStopped(t, e)
	assert.Equal(t, "LOITER", sim.Mode())
}

func TestExecutorGotoClampsAltitude(t *testing.T) {
	sim := NewSimVehicle(45.5, -73.6)
	e := fastExecutor(sim)

	require.NoError(t, e.StartGoto(45.6, -73.7, 5))
	waitStopped(t, e)
	assert.Equal(t, MinAlt, sim.Position().RelAlt)
}

func TestGimbalTiltClamps(t *testing.T) {
	sim := NewSimVehicle(0, 0)
	g := NewGimbal(sim)
	assert.Equal(t, TiltCenter, g.PWM())

	for i := 0; i < 30; i++ {
		g.TiltUp()
	}
	assert.Equal(t, TiltMax, g.PWM())
	assert.Equal(t, TiltMax, sim.Servos[ServoCameraTilt])

	for i := 0; i < 50; i++ {
		g.TiltDown()
	}
	assert.Equal(t, TiltMin, g.PWM())
}

func TestSimVehicleRCClamp(t *testing.T) {
	sim := NewSimVehicle(0, 0)
	require.NoError(t, sim.OverrideRC(ChanThrottle, 2500))
	assert.Equal(t, PWMMax, sim.RC[ChanThrottle])
	require.NoError(t, sim.OverrideRC(ChanRoll, 0))
	assert.Equal(t, 0, sim.RC[ChanRoll])
}
