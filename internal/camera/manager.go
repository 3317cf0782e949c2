// Package camera manages the optional visible-light USB camera and the
// on-demand recording sessions.
package camera

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/logger"
)

// Availability is the tri-state camera status.
type Availability int

const (
	AvailUnknown Availability = iota
	AvailYes
	AvailNo
)

func (a Availability) String() string {
	switch a {
	case AvailYes:
		return "available"
	case AvailNo:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Device is the capture handle, injectable for tests.
type Device interface {
	IsOpened() bool
	Read(dst *gocv.Mat) bool
	Close() error
}

// Opener opens a capture device by V4L2 index.
type Opener func(index int) (Device, error)

func openByIndex(index int) (Device, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, err
	}
	return cap, nil
}

const probeCooldown = 10 * time.Second

// Manager discovers and owns the regular camera. The thermal sensor
// occupies one V4L2 index which must never be probed as a regular
// camera.
type Manager struct {
	mu sync.Mutex

	opener       Opener
	excludeIndex int
	maxIndex     int

	dev   Device
	index int
	avail Availability

	lastProbe time.Time
}

// NewManager creates a manager that skips excludeIndex (the thermal
// sensor) when probing. Pass a negative excludeIndex to probe all.
func NewManager(excludeIndex, maxIndex int) *Manager {
	return &Manager{
		opener:       openByIndex,
		excludeIndex: excludeIndex,
		maxIndex:     maxIndex,
		index:        -1,
	}
}

// NewManagerWithOpener is NewManager with an injected device opener.
func NewManagerWithOpener(excludeIndex, maxIndex int, opener Opener) *Manager {
	m := NewManager(excludeIndex, maxIndex)
	m.opener = opener
	return m
}

// Availability reports the last known camera state.
func (m *Manager) Availability() Availability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avail
}

// Index reports the V4L2 index the camera occupies, -1 when none is
// open.
func (m *Manager) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return -1
	}
	return m.index
}

// probeOrder lists candidate indices. Index 0 is usually an onboard
// camera of the companion computer, so external indices go first.
func (m *Manager) probeOrder() []int {
	var order []int
	for i := 1; i <= m.maxIndex; i++ {
		if i != m.excludeIndex {
			order = append(order, i)
		}
	}
	if m.excludeIndex != 0 {
		order = append(order, 0)
	}
	return order
}

// discover probes candidate indices and verifies a test read. Caller
// holds the lock.
func (m *Manager) discover() error {
	for _, idx := range m.probeOrder() {
		dev, err := m.opener(idx)
		if err != nil || !dev.IsOpened() {
			if dev != nil {
				dev.Close()
			}
			continue
		}
		probe := gocv.NewMat()
		ok := dev.Read(&probe) && !probe.Empty()
		probe.Close()
		if !ok {
			dev.Close()
			continue
		}
		m.dev = dev
		m.index = idx
		m.avail = AvailYes
		logger.Info("Camera", "regular camera found at index %d", idx)
		return nil
	}
	m.avail = AvailNo
	return fmt.Errorf("no regular camera found")
}

// Frame returns the current camera frame, rotated 180 degrees to match
// the mount orientation. Returns false when no camera is available.
// The caller owns the returned Mat.
func (m *Manager) Frame() (gocv.Mat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev == nil {
		if m.avail == AvailNo && time.Since(m.lastProbe) < probeCooldown {
			return gocv.Mat{}, false
		}
		m.lastProbe = time.Now()
		if err := m.discover(); err != nil {
			logger.Debug("Camera", "discover: %v", err)
			return gocv.Mat{}, false
		}
	}

	img := gocv.NewMat()
	if !m.dev.Read(&img) || img.Empty() {
		img.Close()
		m.dev.Close()
		m.dev = nil
		m.avail = AvailNo
		m.lastProbe = time.Now()
		logger.Warn("Camera", "read failed, camera marked unavailable")
		return gocv.Mat{}, false
	}

	// Mounted upside down on the gimbal.
	gocv.Flip(img, &img, -1)
	return img, true
}

// Close releases the device.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil {
		m.dev.Close()
		m.dev = nil
	}
}
