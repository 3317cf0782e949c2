package flight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveRelativeHeadingFrame(t *testing.T) {
	sim := NewSimVehicle(45.0, 7.0)
	sim.SetPosition(Position{Lat: 45.0, Lon: 7.0, RelAlt: 30})

	// Facing north, forward is pure latitude.
	require.NoError(t, MoveRelative(sim, 10, 0, 0))
	pos := sim.Position()
	assert.InDelta(t, 45.0+10.0/111320, pos.Lat, 1e-9)
	assert.InDelta(t, 7.0, pos.Lon, 1e-9)

	// Facing east, forward is pure longitude.
	sim.SetPosition(Position{Lat: 45.0, Lon: 7.0, RelAlt: 30})
	sim.SetHeading(90)
	require.NoError(t, MoveRelative(sim, 10, 0, 0))
	pos = sim.Position()
	assert.InDelta(t, 45.0, pos.Lat, 1e-6)
	assert.Greater(t, pos.Lon, 7.0)
}

func TestMoveRelativeAltitudeFloor(t *testing.T) {
	sim := NewSimVehicle(0, 0)
	sim.SetPosition(Position{RelAlt: 1.5})

	require.NoError(t, MoveRelative(sim, 0, 0, 5))
	assert.Equal(t, minMoveAlt, sim.Position().RelAlt)
}

func TestSimTakeoffRequiresArm(t *testing.T) {
	sim := NewSimVehicle(0, 0)
	require.Error(t, sim.Takeoff(2))

	require.NoError(t, sim.Arm())
	require.NoError(t, sim.Takeoff(2))
	assert.Equal(t, "GUIDED", sim.Mode())
	assert.Equal(t, 2.0, sim.Position().RelAlt)
}
