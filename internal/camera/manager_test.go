package camera

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type stubDevice struct {
	readOK bool
}

func (d *stubDevice) IsOpened() bool { return true }

func (d *stubDevice) Read(dst *gocv.Mat) bool {
	if !d.readOK {
		return false
	}
	m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return true
}

func (d *stubDevice) Close() error { return nil }

func TestManagerDiscoveryOrder(t *testing.T) {
	var probed []int
	m := NewManagerWithOpener(1, 3, func(idx int) (Device, error) {
		probed = append(probed, idx)
		if idx == 3 {
			return &stubDevice{readOK: true}, nil
		}
		return nil, fmt.Errorf("no device at %d", idx)
	})

	img, ok := m.Frame()
	require.True(t, ok)
	img.Close()
	defer m.Close()

	// Thermal index 1 is never probed, index 0 comes last.
	assert.Equal(t, []int{2, 3}, probed)
	assert.NotContains(t, probed, 1)
	assert.Equal(t, AvailYes, m.Availability())
	assert.Equal(t, 3, m.Index())
}

func TestManagerIndexWithoutDevice(t *testing.T) {
	m := NewManagerWithOpener(-1, 2, nil)
	assert.Equal(t, -1, m.Index())
}

func TestManagerIndexZeroLast(t *testing.T) {
	m := NewManagerWithOpener(2, 3, nil)
	assert.Equal(t, []int{1, 3, 0}, m.probeOrder())
}

func TestManagerUnavailableCooldown(t *testing.T) {
	probes := 0
	m := NewManagerWithOpener(-1, 2, func(idx int) (Device, error) {
		probes++
		return nil, fmt.Errorf("nothing attached")
	})

	_, ok := m.Frame()
	assert.False(t, ok)
	assert.Equal(t, AvailNo, m.Availability())
	firstRound := probes

	// Within the cooldown no new probes happen.
	_, ok = m.Frame()
	assert.False(t, ok)
	assert.Equal(t, firstRound, probes)
}

func TestManagerReadFailureMarksUnavailable(t *testing.T) {
	m := NewManagerWithOpener(-1, 1, func(idx int) (Device, error) {
		return &stubDevice{readOK: idx == 1}, nil
	})

	img, ok := m.Frame()
	require.True(t, ok)
	img.Close()

	// Swap the device for one that fails reads.
	m.mu.Lock()
	m.dev = &stubDevice{readOK: false}
	m.mu.Unlock()

	_, ok = m.Frame()
	assert.False(t, ok)
	assert.Equal(t, AvailNo, m.Availability())
}
