package thermal

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/logger"
)

// probeMaxIndex bounds the V4L2 index scan when the fixed device path
// fails.
const probeMaxIndex = 9

func openSensorIndex(index int) (Device, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, err
	}
	cap.Set(gocv.VideoCaptureConvertRGB, 0)
	return cap, nil
}

// FindSensor opens the thermal sensor at the fixed path, falling back
// to scanning V4L2 indices 0 through 9. exclude is the index the
// regular camera is believed to occupy; index 0 is scanned last since
// it is usually a built-in webcam. Exhausting every candidate returns
// an error, leaving the sensor unavailable rather than crashing.
func FindSensor(path string, exclude int) (Device, error) {
	return findSensor(path, exclude, OpenSensor, openSensorIndex)
}

func findSensor(path string, exclude int,
	openPath func(string) (Device, error), openIndex func(int) (Device, error)) (Device, error) {
	if dev, err := openPath(path); err == nil {
		if dev.IsOpened() {
			return dev, nil
		}
		dev.Close()
	}

	for _, idx := range sensorProbeOrder(exclude) {
		dev, err := openIndex(idx)
		if err != nil {
			continue
		}
		if !dev.IsOpened() {
			dev.Close()
			continue
		}
		logger.Info("Thermal", "sensor found at index %d", idx)
		return dev, nil
	}
	return nil, fmt.Errorf("thermal sensor unavailable: tried %s and indices 0-%d", path, probeMaxIndex)
}

func sensorProbeOrder(exclude int) []int {
	var order []int
	for i := 1; i <= probeMaxIndex; i++ {
		if i != exclude {
			order = append(order, i)
		}
	}
	if exclude != 0 {
		order = append(order, 0)
	}
	return order
}
